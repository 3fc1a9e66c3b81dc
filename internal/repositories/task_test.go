package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTaskRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := models.NewTaskRecord(0, "t-1", "data.json")

		if err := repo.Create(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
		if task.ID() == "" {
			t.Error("task ID should be set after creation")
		}
		if task.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", task.Sequence())
		}
	})

	t.Run("Create Validates", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if err := repo.Create(models.NewTaskRecord(0, "", "data.json")); err == nil {
			t.Error("expected validation error for missing task id")
		}
	})

	t.Run("Duplicate Task ID", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if err := repo.Create(models.NewTaskRecord(0, "t-1", "a.json")); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
		if err := repo.Create(models.NewTaskRecord(0, "t-1", "b.json")); err == nil {
			t.Error("expected unique constraint violation")
		}
	})

	t.Run("Get And GetByTaskID", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := models.NewTaskRecord(0, "t-1", "data.json")
		if err := repo.Create(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		byID, err := repo.Get(task.ID())
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}
		byTask, err := repo.GetByTaskID("t-1")
		if err != nil {
			t.Fatalf("failed to get task by task id: %v", err)
		}

		if byID.ID() != byTask.ID() || byID.Filename() != "data.json" {
			t.Errorf("expected same record, got %s and %s", byID.ID(), byTask.ID())
		}
		if byID.Status() != models.StatusQueued {
			t.Errorf("expected queued, got %s", byID.Status())
		}
		if byID.Files() == nil {
			t.Error("expected non-nil files")
		}
	})

	t.Run("Get Missing", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if _, err := repo.Get("nope"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Update Round Trips Files", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := models.NewTaskRecord(0, "t-1", "data.json")
		if err := repo.Create(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		task.Apply(models.Snapshot{
			Status:   models.StatusComplete,
			Progress: 100,
			Files: []models.ArtifactFile{
				{Type: models.FileExcel, Filename: "report.xlsx"},
				{Type: models.FileLog, Filename: "run.log"},
			},
		})
		if err := repo.Update(task); err != nil {
			t.Fatalf("failed to update task: %v", err)
		}

		got, err := repo.Get(task.ID())
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}
		if got.Status() != models.StatusComplete || got.Progress() != 100 {
			t.Errorf("unexpected status %s/%d", got.Status(), got.Progress())
		}
		if len(got.Files()) != 2 || got.Files()[1].Filename != "run.log" {
			t.Errorf("unexpected files %+v", got.Files())
		}
		if got.CompletedAt() == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("Delete Is Soft", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTaskRepository(db)
		task := models.NewTaskRecord(0, "t-1", "data.json")
		if err := repo.Create(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if err := repo.Delete(task.ID()); err != nil {
			t.Fatalf("failed to delete task: %v", err)
		}
		if _, err := repo.Get(task.ID()); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected deleted task to be hidden, got %v", err)
		}
		if err := repo.Delete(task.ID()); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected second delete to fail, got %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
			t.Fatalf("failed to count rows: %v", err)
		}
		if count != 1 {
			t.Errorf("expected row to remain, got %d", count)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		for _, id := range []string{"a", "b", "c"} {
			if err := repo.Create(models.NewTaskRecord(0, id, id+".json")); err != nil {
				t.Fatalf("failed to create task: %v", err)
			}
		}
		if err := repo.RecordSnapshot(context.Background(), models.Snapshot{TaskID: "b", Status: models.StatusFailed, Error: "bad"}); err != nil {
			t.Fatalf("failed to record snapshot: %v", err)
		}
		if err := repo.MarkCleanedUp("c"); err != nil {
			t.Fatalf("failed to mark cleaned up: %v", err)
		}

		tests := []struct {
			name     string
			criteria map[string]any
			want     []string
		}{
			{name: "All Newest First", criteria: map[string]any{}, want: []string{"c", "b", "a"}},
			{name: "By Status", criteria: map[string]any{"status": "failed"}, want: []string{"b"}},
			{name: "Not Cleaned Up", criteria: map[string]any{"cleaned_up": false}, want: []string{"b", "a"}},
			{name: "Limit", criteria: map[string]any{"limit": 1}, want: []string{"c"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.List(tt.criteria)
				if err != nil {
					t.Fatalf("failed to list: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("expected %d records, got %d", len(tt.want), len(got))
				}
				for i, task := range got {
					if task.TaskID() != tt.want[i] {
						t.Errorf("position %d: expected %s, got %s", i, tt.want[i], task.TaskID())
					}
				}
			})
		}
	})

	t.Run("RecordUpload", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task, err := repo.RecordUpload(&models.UploadResponse{TaskID: "t-1", Filename: "data.json", Status: models.StatusQueued})
		if err != nil {
			t.Fatalf("failed to record upload: %v", err)
		}
		if task.TaskID() != "t-1" || task.ID() == "" {
			t.Errorf("unexpected record %s/%s", task.TaskID(), task.ID())
		}
	})

	t.Run("RecordSnapshot Creates Unknown Task", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		snap := models.Snapshot{TaskID: "remote", Status: models.StatusComplete, Progress: 100}

		if err := repo.RecordSnapshot(context.Background(), snap); err != nil {
			t.Fatalf("failed to record snapshot: %v", err)
		}
		got, err := repo.GetByTaskID("remote")
		if err != nil {
			t.Fatalf("expected record to be created: %v", err)
		}
		if got.Filename() != "remote" || got.Status() != models.StatusComplete {
			t.Errorf("unexpected record %s/%s", got.Filename(), got.Status())
		}
	})

	t.Run("RecordSnapshot Respects Context", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := repo.RecordSnapshot(ctx, models.Snapshot{TaskID: "x", Status: models.StatusComplete}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("MarkCleanedUp Missing", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if err := repo.MarkCleanedUp("nope"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "tasks")
		if err != nil {
			t.Fatalf("failed to get sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}
