// package formatter renders task snapshots and upload history as text, JSON, YAML or Markdown
package formatter

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"gopkg.in/yaml.v3"
)

// Format selects an output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat converts a flag value into a [Format]. "md" and "yml" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// HistoryEntry is the exported shape of one [models.TaskRecord].
type HistoryEntry struct {
	Sequence    int                   `json:"sequence" yaml:"sequence"`
	TaskID      string                `json:"task_id" yaml:"task_id"`
	Filename    string                `json:"filename" yaml:"filename"`
	Status      models.Status         `json:"status" yaml:"status"`
	Progress    int                   `json:"progress" yaml:"progress"`
	Files       []models.ArtifactFile `json:"files" yaml:"files"`
	Error       string                `json:"error,omitempty" yaml:"error,omitempty"`
	CleanedUp   bool                  `json:"cleaned_up" yaml:"cleaned_up"`
	CreatedAt   time.Time             `json:"created_at" yaml:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// NewHistoryEntry converts a record into its exported shape.
func NewHistoryEntry(r *models.TaskRecord) HistoryEntry {
	files := r.Files()
	if files == nil {
		files = []models.ArtifactFile{}
	}
	return HistoryEntry{
		Sequence:    r.Sequence(),
		TaskID:      r.TaskID(),
		Filename:    r.Filename(),
		Status:      r.Status(),
		Progress:    r.Progress(),
		Files:       files,
		Error:       r.ErrorMessage(),
		CleanedUp:   r.CleanedUp(),
		CreatedAt:   r.CreatedAt(),
		CompletedAt: r.CompletedAt(),
	}
}

// RenderSnapshot renders a single status snapshot.
func RenderSnapshot(s models.Snapshot, f Format) ([]byte, error) {
	s = s.Normalize()
	switch f {
	case FormatJSON:
		return shared.MarshalJSON(s, true)
	case FormatYAML:
		return marshalYAML(s)
	case FormatMarkdown:
		return snapshotMarkdown(s), nil
	case FormatText:
		return snapshotText(s), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// RenderHistory renders a list of history records, newest first as given.
func RenderHistory(records []*models.TaskRecord, f Format) ([]byte, error) {
	entries := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, NewHistoryEntry(r))
	}

	switch f {
	case FormatJSON:
		return shared.MarshalJSON(entries, true)
	case FormatYAML:
		return marshalYAML(entries)
	case FormatMarkdown:
		return historyMarkdown(entries), nil
	case FormatText:
		return historyText(entries), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ProgressBar draws a fixed-width ASCII bar such as "[#####-----]".
func ProgressBar(progress, width int) string {
	if width <= 0 {
		width = 20
	}
	progress = max(0, min(progress, 100))
	filled := progress * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// WriteSnapshotExport writes a rendered snapshot to path.
//
// Defaults to {task_id}_status.{ext} when path is empty.
func WriteSnapshotExport(s models.Snapshot, f Format, path string) (string, error) {
	if path == "" {
		id := s.TaskID
		if id == "" {
			id = "task"
		}
		path = fmt.Sprintf("%s_status.%s", id, f.Ext())
	}

	data, err := RenderSnapshot(s, f)
	if err != nil {
		return "", fmt.Errorf("failed to render snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// RenderTerminal styles Markdown output for a terminal, wrapping at width columns (default 80).
func RenderTerminal(md []byte, width int) ([]byte, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(string(md))
	if err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return []byte(out), nil
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func snapshotText(s models.Snapshot) []byte {
	var buf bytes.Buffer

	if s.TaskID != "" {
		fmt.Fprintf(&buf, "Task: %s\n", s.TaskID)
	}
	if s.Filename != "" {
		fmt.Fprintf(&buf, "File: %s\n", s.Filename)
	}
	fmt.Fprintf(&buf, "Status: %s\n", s.Status)

	switch s.Status {
	case models.StatusProcessing:
		fmt.Fprintf(&buf, "Progress: %s %d%%\n", ProgressBar(s.Progress, 20), s.Progress)
	case models.StatusComplete:
		fmt.Fprintf(&buf, "Artifacts: %d\n", len(s.Files))
		for _, f := range s.Files {
			fmt.Fprintf(&buf, "  - %s (%s)\n", f.Filename, f.Type)
		}
	case models.StatusFailed:
		fmt.Fprintf(&buf, "Error: %s\n", s.FailureMessage())
	}
	return buf.Bytes()
}

func snapshotMarkdown(s models.Snapshot) []byte {
	var buf bytes.Buffer

	title := s.TaskID
	if title == "" {
		title = "Task"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	if s.Filename != "" {
		fmt.Fprintf(&buf, "**File**: %s\n\n", s.Filename)
	}
	fmt.Fprintf(&buf, "**Status**: %s\n", s.Status)
	fmt.Fprintf(&buf, "**Progress**: %d%%\n", s.Progress)
	if s.Created != "" {
		fmt.Fprintf(&buf, "**Created**: %s\n", s.Created)
	}

	if s.Status == models.StatusFailed {
		fmt.Fprintf(&buf, "\n> %s\n", s.FailureMessage())
	}

	if len(s.Files) > 0 {
		buf.WriteString("\n## Artifacts\n\n")
		for i, f := range s.Files {
			fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, f.Filename, f.Type)
		}
	}
	return buf.Bytes()
}

func historyText(entries []HistoryEntry) []byte {
	var buf bytes.Buffer
	if len(entries) == 0 {
		buf.WriteString("No uploads recorded.\n")
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "%-5s %-38s %-11s %-9s %s\n", "#", "TASK", "STATUS", "ARTIFACTS", "FILE")
	for _, e := range entries {
		status := string(e.Status)
		if e.CleanedUp {
			status += "*"
		}
		fmt.Fprintf(&buf, "%-5d %-38s %-11s %-9d %s\n", e.Sequence, e.TaskID, status, len(e.Files), e.Filename)
	}
	return buf.Bytes()
}

func historyMarkdown(entries []HistoryEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Upload History\n\n")
	fmt.Fprintf(&buf, "**Uploads**: %d\n\n", len(entries))
	if len(entries) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("| # | Task | File | Status | Artifacts | Uploaded |\n")
	buf.WriteString("|---|------|------|--------|-----------|----------|\n")
	for _, e := range entries {
		fmt.Fprintf(&buf, "| %d | `%s` | %s | %s | %d | %s |\n",
			e.Sequence, e.TaskID, e.Filename, e.Status, len(e.Files), e.CreatedAt.Format(time.DateTime))
	}
	return buf.Bytes()
}
