package models

import (
	"fmt"
)

// Status is the lifecycle state of a remote processing task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// DefaultFailureMessage is reported when a failed snapshot carries no error text.
const DefaultFailureMessage = "Processing failed"

// IsTerminal reports whether the status ends a task's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// FileType identifies the kind of artifact a completed task produced.
type FileType string

const (
	FileExcel FileType = "excel"
	FileLog   FileType = "log"
)

// Valid reports whether t is a known artifact type.
func (t FileType) Valid() bool {
	return t == FileExcel || t == FileLog
}

// ParseFileType converts user input into a [FileType].
func ParseFileType(s string) (FileType, error) {
	t := FileType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown file type %q (want excel or log)", s)
	}
	return t, nil
}

// ArtifactFile is a downloadable output of a completed task.
type ArtifactFile struct {
	Type     FileType `json:"type" yaml:"type"`
	Filename string   `json:"filename" yaml:"filename"`
}

// Snapshot is the point-in-time status record of a task as reported by the processor.
//
// Progress is only meaningful while processing, Files only once complete and Error only once failed.
type Snapshot struct {
	TaskID   string         `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	Filename string         `json:"filename,omitempty" yaml:"filename,omitempty"`
	Status   Status         `json:"status" yaml:"status"`
	Created  string         `json:"created,omitempty" yaml:"created,omitempty"`
	Progress int            `json:"progress" yaml:"progress"`
	Files    []ArtifactFile `json:"files" yaml:"files"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Validate rejects snapshots with an unknown status.
func (s Snapshot) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("invalid snapshot status %q", s.Status)
	}
	for _, f := range s.Files {
		if !f.Type.Valid() {
			return fmt.Errorf("invalid artifact type %q", f.Type)
		}
	}
	return nil
}

// Normalize returns a copy with progress clamped to [0,100] and a non-nil file list.
func (s Snapshot) Normalize() Snapshot {
	switch {
	case s.Progress < 0:
		s.Progress = 0
	case s.Progress > 100:
		s.Progress = 100
	}
	files := make([]ArtifactFile, len(s.Files))
	copy(files, s.Files)
	s.Files = files
	return s
}

// FailureMessage returns the snapshot's error text or [DefaultFailureMessage].
func (s Snapshot) FailureMessage() string {
	if s.Error != "" {
		return s.Error
	}
	return DefaultFailureMessage
}

// File returns the artifact of the given type, if present.
func (s Snapshot) File(t FileType) (ArtifactFile, bool) {
	for _, f := range s.Files {
		if f.Type == t {
			return f, true
		}
	}
	return ArtifactFile{}, false
}

// UploadResponse is returned by the processor when a file is accepted.
type UploadResponse struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	Status   Status `json:"status"`
}
