package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
)

const taskColumns = `
	id, sequence, task_id, filename, status, progress, files,
	error_message, cleaned_up, completed_at, created_at, updated_at, deleted_at
`

var _ models.Repository[*models.TaskRecord] = (*TaskRepository)(nil)

// TaskRepository stores the local upload history.
//
// Files are stored as a JSON array; soft-deleted records are excluded from every query.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task record with generated ID and sequence
func (r *TaskRepository) Create(task *models.TaskRecord) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "tasks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	task.SetID(shared.GenerateID())
	task.SetSequence(sequence)

	files, err := encodeFiles(task.Files())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = r.db.Exec(query,
		task.ID(),
		task.Sequence(),
		task.TaskID(),
		task.Filename(),
		task.Status(),
		task.Progress(),
		files,
		nullString(task.ErrorMessage()),
		task.CleanedUp(),
		task.CompletedAt(),
		task.CreatedAt(),
		task.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get retrieves a task record by ID
func (r *TaskRepository) Get(id string) (*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND deleted_at IS NULL`
	return scanTask(r.db.QueryRow(query, id))
}

// GetByTaskID retrieves a task record by the processor's task id
func (r *TaskRepository) GetByTaskID(taskID string) (*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_id = ? AND deleted_at IS NULL`
	return scanTask(r.db.QueryRow(query, taskID))
}

// Update writes the mutable fields of an existing record
func (r *TaskRepository) Update(task *models.TaskRecord) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	files, err := encodeFiles(task.Files())
	if err != nil {
		return err
	}

	now := time.Now()
	task.SetUpdatedAt(now)

	query := `
		UPDATE tasks
		SET status = ?, progress = ?, files = ?, error_message = ?,
			cleaned_up = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := r.db.Exec(query,
		task.Status(),
		task.Progress(),
		files,
		nullString(task.ErrorMessage()),
		task.CleanedUp(),
		task.CompletedAt(),
		now,
		task.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectAffected(result, task.ID())
}

// Delete soft-deletes a task record by ID
func (r *TaskRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE tasks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectAffected(result, id)
}

// List retrieves task records matching criteria, newest first.
//
// Supported criteria: "status" (string), "cleaned_up" (bool), "limit" (int).
func (r *TaskRepository) List(criteria map[string]any) ([]*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if cleanedUp, ok := criteria["cleaned_up"].(bool); ok {
		query += " AND cleaned_up = ?"
		args = append(args, cleanedUp)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.TaskRecord
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tasks, nil
}

// RecordUpload stores a freshly accepted upload.
func (r *TaskRepository) RecordUpload(resp *models.UploadResponse) (*models.TaskRecord, error) {
	task := models.NewTaskRecord(0, resp.TaskID, resp.Filename)
	if resp.Status.Valid() {
		task.SetStatus(resp.Status)
	}
	if err := r.Create(task); err != nil {
		return nil, err
	}
	return task, nil
}

// RecordSnapshot applies snap to the record for its task, creating the record when the task was uploaded elsewhere.
func (r *TaskRepository) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	task, err := r.GetByTaskID(snap.TaskID)
	switch {
	case errors.Is(err, shared.ErrRecordNotFound):
		filename := snap.Filename
		if filename == "" {
			filename = snap.TaskID
		}
		task = models.NewTaskRecord(0, snap.TaskID, filename)
		task.Apply(snap)
		return r.Create(task)
	case err != nil:
		return err
	}

	task.Apply(snap)
	return r.Update(task)
}

// MarkCleanedUp flags the record for taskID once the remote task has been deleted.
func (r *TaskRepository) MarkCleanedUp(taskID string) error {
	task, err := r.GetByTaskID(taskID)
	if err != nil {
		return err
	}
	task.SetCleanedUp(true)
	return r.Update(task)
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.TaskRecord, error) {
	var (
		id           string
		sequence     int
		taskID       string
		filename     string
		status       string
		progress     int
		files        string
		errorMessage sql.NullString
		cleanedUp    bool
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &taskID, &filename, &status, &progress, &files,
		&errorMessage, &cleanedUp, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task := models.NewTaskRecord(sequence, taskID, filename)
	task.SetID(id)
	task.SetStatus(models.Status(status))
	task.SetProgress(progress)
	task.SetCleanedUp(cleanedUp)
	task.SetCreatedAt(createdAt)
	task.SetUpdatedAt(updatedAt)

	decoded, err := decodeFiles(files)
	if err != nil {
		return nil, err
	}
	task.SetFiles(decoded)

	if errorMessage.Valid {
		task.SetErrorMessage(errorMessage.String)
	}
	if completedAt.Valid {
		task.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		task.SetDeletedAt(&deletedAt.Time)
	}
	return task, nil
}

func encodeFiles(files []models.ArtifactFile) (string, error) {
	if files == nil {
		files = []models.ArtifactFile{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("failed to encode files: %w", err)
	}
	return string(data), nil
}

func decodeFiles(data string) ([]models.ArtifactFile, error) {
	files := []models.ArtifactFile{}
	if data == "" {
		return files, nil
	}
	if err := json.Unmarshal([]byte(data), &files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	return files, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func expectAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, id)
	}
	return nil
}
