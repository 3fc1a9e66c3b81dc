package tasks

import (
	"fmt"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Waiting Phase = iota
	Processing
	Completed
	Failed
	Vanished
	Downloading
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Vanished:
		return "vanished"
	case Downloading:
		return "downloading"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}

// snapshotUpdate maps a snapshot onto a percentage step out of 100.
func snapshotUpdate(s models.Snapshot) ProgressUpdate {
	switch s.Status {
	case models.StatusComplete:
		return ProgressUpdate{
			Phase:   Completed,
			Step:    100,
			Total:   100,
			Message: fmt.Sprintf("Processing complete (%d files ready)", len(s.Files)),
			Data:    s,
		}
	case models.StatusFailed:
		return ProgressUpdate{
			Phase:   Failed,
			Step:    s.Progress,
			Total:   100,
			Message: fmt.Sprintf("Processing failed: %s", s.FailureMessage()),
			Data:    s,
		}
	case models.StatusProcessing:
		return ProgressUpdate{
			Phase:   Processing,
			Step:    s.Progress,
			Total:   100,
			Message: fmt.Sprintf("Processing... %d%%", s.Progress),
			Data:    s,
		}
	default:
		return ProgressUpdate{
			Phase:   Waiting,
			Total:   100,
			Message: "Queued, waiting for the processor...",
			Data:    s,
		}
	}
}

func vanishedUpdate(taskID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Vanished,
		Message: fmt.Sprintf("Task %s is no longer available", taskID),
	}
}

func downloadStartedUpdate(step, total int, f models.ArtifactFile) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading %s (%s)...", step, total, f.Filename, f.Type),
	}
}

func downloadCompletedUpdate(step, total int, res DownloadFileResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, res.Path, shared.FormatBytes(res.Bytes)),
		Data:    res,
	}
}

func downloadFailedUpdate(step, total int, res DownloadFileResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Downloading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.File.Filename, res.Error),
		Data:    res,
	}
}
