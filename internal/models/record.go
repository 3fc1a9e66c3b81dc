package models

import (
	"fmt"
	"time"
)

// TaskRecord is the local history entry for one uploaded file.
//
// It is created at upload time and updated once the task reaches a terminal status.
type TaskRecord struct {
	id          string
	sequence    int
	taskID      string
	filename    string
	status      Status
	progress    int
	files       []ArtifactFile
	errMessage  string
	cleanedUp   bool
	completedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewTaskRecord creates a queued record for a freshly uploaded task.
func NewTaskRecord(sequence int, taskID, filename string) *TaskRecord {
	now := time.Now()
	return &TaskRecord{
		sequence:  sequence,
		taskID:    taskID,
		filename:  filename,
		status:    StatusQueued,
		files:     []ArtifactFile{},
		createdAt: now,
		updatedAt: now,
	}
}

func (r *TaskRecord) ID() string              { return r.id }
func (r *TaskRecord) Sequence() int           { return r.sequence }
func (r *TaskRecord) TaskID() string          { return r.taskID }
func (r *TaskRecord) Filename() string        { return r.filename }
func (r *TaskRecord) Status() Status          { return r.status }
func (r *TaskRecord) Progress() int           { return r.progress }
func (r *TaskRecord) Files() []ArtifactFile   { return r.files }
func (r *TaskRecord) ErrorMessage() string    { return r.errMessage }
func (r *TaskRecord) CleanedUp() bool         { return r.cleanedUp }
func (r *TaskRecord) CompletedAt() *time.Time { return r.completedAt }
func (r *TaskRecord) CreatedAt() time.Time    { return r.createdAt }
func (r *TaskRecord) UpdatedAt() time.Time    { return r.updatedAt }
func (r *TaskRecord) DeletedAt() *time.Time   { return r.deletedAt }

func (r *TaskRecord) SetID(id string)               { r.id = id }
func (r *TaskRecord) SetSequence(seq int)           { r.sequence = seq }
func (r *TaskRecord) SetStatus(s Status)            { r.status = s }
func (r *TaskRecord) SetProgress(p int)             { r.progress = p }
func (r *TaskRecord) SetErrorMessage(msg string)    { r.errMessage = msg }
func (r *TaskRecord) SetCleanedUp(v bool)           { r.cleanedUp = v }
func (r *TaskRecord) SetCompletedAt(t *time.Time)   { r.completedAt = t }
func (r *TaskRecord) SetCreatedAt(t time.Time)      { r.createdAt = t }
func (r *TaskRecord) SetUpdatedAt(t time.Time)      { r.updatedAt = t }
func (r *TaskRecord) SetDeletedAt(t *time.Time)     { r.deletedAt = t }
func (r *TaskRecord) SetFiles(files []ArtifactFile) { r.files = files }

// Apply copies the observable fields of a snapshot into the record.
// Terminal snapshots also stamp the completion time.
func (r *TaskRecord) Apply(s Snapshot) {
	r.status = s.Status
	r.progress = s.Progress
	r.files = s.Normalize().Files
	r.errMessage = s.Error
	if s.Status.IsTerminal() && r.completedAt == nil {
		now := time.Now()
		r.completedAt = &now
	}
}

// Snapshot rebuilds the last known snapshot from the record.
func (r *TaskRecord) Snapshot() Snapshot {
	s := Snapshot{
		TaskID:   r.taskID,
		Filename: r.filename,
		Status:   r.status,
		Created:  r.createdAt.Format(time.RFC3339),
		Progress: r.progress,
		Files:    r.files,
		Error:    r.errMessage,
	}
	return s.Normalize()
}

// Validate checks required fields.
func (r *TaskRecord) Validate() error {
	if r.taskID == "" {
		return fmt.Errorf("task id is required")
	}
	if r.filename == "" {
		return fmt.Errorf("filename is required")
	}
	if !r.status.Valid() {
		return fmt.Errorf("invalid status %q", r.status)
	}
	return nil
}
