package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	th "github.com/desertthunder/mrx/internal/testing"
	"gopkg.in/yaml.v3"
)

func completeSnapshot() models.Snapshot {
	return models.Snapshot{
		TaskID:   "abc-123",
		Filename: "data.json",
		Status:   models.StatusComplete,
		Progress: 100,
		Files: []models.ArtifactFile{
			{Type: models.FileExcel, Filename: "report.xlsx"},
			{Type: models.FileLog, Filename: "run.log"},
		},
	}
}

func historyRecords() []*models.TaskRecord {
	done := models.NewTaskRecord(2, "t-2", "second.json")
	done.Apply(completeSnapshot())
	done.SetCleanedUp(true)

	queued := models.NewTaskRecord(1, "t-1", "first.json")
	return []*models.TaskRecord{done, queued}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "text", want: FormatText},
		{in: "JSON", want: FormatJSON},
		{in: "yml", want: FormatYAML},
		{in: "md", want: FormatMarkdown},
		{in: "csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRenderSnapshot(t *testing.T) {
	t.Run("Text Complete", func(t *testing.T) {
		data, err := RenderSnapshot(completeSnapshot(), FormatText)
		if err != nil {
			t.Fatalf("RenderSnapshot failed: %v", err)
		}
		output := string(data)
		for _, want := range []string{"Task: abc-123", "Status: complete", "Artifacts: 2", "report.xlsx (excel)", "run.log (log)"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q in output, got: %s", want, output)
			}
		}
	})

	t.Run("Text Processing Shows Bar", func(t *testing.T) {
		data, err := RenderSnapshot(models.Snapshot{Status: models.StatusProcessing, Progress: 50}, FormatText)
		if err != nil {
			t.Fatalf("RenderSnapshot failed: %v", err)
		}
		if !strings.Contains(string(data), "[##########----------] 50%") {
			t.Errorf("expected progress bar, got: %s", data)
		}
	})

	t.Run("Text Failed Uses Default Message", func(t *testing.T) {
		data, err := RenderSnapshot(models.Snapshot{Status: models.StatusFailed}, FormatText)
		if err != nil {
			t.Fatalf("RenderSnapshot failed: %v", err)
		}
		if !strings.Contains(string(data), "Error: "+models.DefaultFailureMessage) {
			t.Errorf("expected default failure message, got: %s", data)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := RenderSnapshot(models.Snapshot{Status: models.StatusQueued}, FormatJSON)
		if err != nil {
			t.Fatalf("RenderSnapshot failed: %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["status"] != "queued" {
			t.Errorf("expected queued, got %v", got["status"])
		}
		if files, ok := got["files"].([]any); !ok || len(files) != 0 {
			t.Errorf("expected empty files array, got %v", got["files"])
		}
	})

	t.Run("YAML", func(t *testing.T) {
		data, err := RenderSnapshot(completeSnapshot(), FormatYAML)
		if err != nil {
			t.Fatalf("RenderSnapshot failed: %v", err)
		}
		var got models.Snapshot
		if err := yaml.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if got.TaskID != "abc-123" || len(got.Files) != 2 || got.Files[0].Type != models.FileExcel {
			t.Errorf("unexpected decoded snapshot %+v", got)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := RenderSnapshot(completeSnapshot(), FormatMarkdown)
		if err != nil {
			t.Fatalf("RenderSnapshot failed: %v", err)
		}
		output := string(data)
		if !strings.HasPrefix(output, "# abc-123\n") {
			t.Errorf("expected title heading, got: %s", output)
		}
		if !strings.Contains(output, "## Artifacts") || !strings.Contains(output, "1. report.xlsx (excel)") {
			t.Errorf("expected artifact list, got: %s", output)
		}
	})

	t.Run("Unknown Format", func(t *testing.T) {
		if _, err := RenderSnapshot(completeSnapshot(), Format("csv")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestRenderHistory(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		data, err := RenderHistory(historyRecords(), FormatText)
		if err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and two rows, got %d lines", len(lines))
		}
		if !strings.Contains(lines[1], "t-2") || !strings.Contains(lines[1], "complete*") {
			t.Errorf("expected cleaned up marker on first row, got: %s", lines[1])
		}
		if !strings.Contains(lines[2], "first.json") {
			t.Errorf("expected second row for first.json, got: %s", lines[2])
		}
	})

	t.Run("Text Empty", func(t *testing.T) {
		data, err := RenderHistory(nil, FormatText)
		if err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		if string(data) != "No uploads recorded.\n" {
			t.Errorf("unexpected output: %q", data)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := RenderHistory(historyRecords(), FormatJSON)
		if err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		var got []HistoryEntry
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 2 || got[0].Sequence != 2 || !got[0].CleanedUp || got[0].CompletedAt == nil {
			t.Errorf("unexpected entries %+v", got)
		}
		if got[1].Files == nil {
			t.Error("expected empty files, not null")
		}
	})

	t.Run("YAML", func(t *testing.T) {
		data, err := RenderHistory(historyRecords(), FormatYAML)
		if err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		var got []HistoryEntry
		if err := yaml.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if len(got) != 2 || got[1].TaskID != "t-1" || got[1].Status != models.StatusQueued {
			t.Errorf("unexpected entries %+v", got)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := RenderHistory(historyRecords(), FormatMarkdown)
		if err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "**Uploads**: 2") {
			t.Errorf("expected upload count, got: %s", output)
		}
		if !strings.Contains(output, "| 2 | `t-2` | second.json | complete | 2 |") {
			t.Errorf("expected table row, got: %s", output)
		}
	})
}

func TestRenderTerminal(t *testing.T) {
	md, err := RenderSnapshot(completeSnapshot(), FormatMarkdown)
	if err != nil {
		t.Fatalf("RenderSnapshot failed: %v", err)
	}

	out, err := RenderTerminal(md, 0)
	if err != nil {
		t.Fatalf("RenderTerminal failed: %v", err)
	}
	for _, want := range []string{"abc-123", "report.xlsx", "run.log"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("expected %q in rendered output: %s", want, out)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		progress int
		width    int
		want     string
	}{
		{progress: 0, width: 4, want: "[----]"},
		{progress: 50, width: 4, want: "[##--]"},
		{progress: 100, width: 4, want: "[####]"},
		{progress: 150, width: 4, want: "[####]"},
		{progress: -5, width: 4, want: "[----]"},
	}

	for _, tt := range tests {
		if got := ProgressBar(tt.progress, tt.width); got != tt.want {
			t.Errorf("ProgressBar(%d, %d) = %s, want %s", tt.progress, tt.width, got, tt.want)
		}
	}

	if got := ProgressBar(10, 0); len(got) != 22 {
		t.Errorf("expected default width 20, got %q", got)
	}
}

func TestWriteSnapshotExport(t *testing.T) {
	t.Run("Explicit Path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "status.md")

		written, err := WriteSnapshotExport(completeSnapshot(), FormatMarkdown, path)
		if err != nil {
			t.Fatalf("WriteSnapshotExport failed: %v", err)
		}
		if written != path {
			t.Errorf("expected %s, got %s", path, written)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "# abc-123") {
			t.Errorf("unexpected content: %s", content)
		}
	})

	t.Run("Default Path", func(t *testing.T) {
		t.Chdir(t.TempDir())

		written, err := WriteSnapshotExport(completeSnapshot(), FormatYAML, "")
		if err != nil {
			t.Fatalf("WriteSnapshotExport failed: %v", err)
		}
		if written != "abc-123_status.yaml" {
			t.Errorf("unexpected default path %s", written)
		}
		th.AssertFileExists(t, written)
	})
}
