package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
)

// Recorder persists task snapshots. [repositories.TaskRepository] implements it.
//
// Recording is best effort: errors are reported through the watch result, never by aborting the watch.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap models.Snapshot) error
}

// WatchResult describes how a watched task ended.
type WatchResult struct {
	TaskID    string
	Snapshot  models.Snapshot // Last snapshot observed
	Updates   int             // Number of snapshots observed
	Vanished  bool
	RecordErr error
}

type watchEnd struct {
	snap     models.Snapshot
	failed   string
	vanished bool
}

// Watch blocks until taskID reaches a terminal status, disappears, or ctx is done.
//
// A failed task returns the result together with an error wrapping [shared.ErrTaskFailed];
// a vanished task returns one wrapping [shared.ErrTaskVanished].
func Watch(ctx context.Context, sub Subscriber, taskID string, progress chan<- ProgressUpdate, rec Recorder) (*WatchResult, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	result := &WatchResult{TaskID: taskID}
	updates := make(chan models.Snapshot, 16)
	done := make(chan watchEnd, 1)

	unsubscribe := sub.Subscribe(ctx, taskID, Callbacks{
		OnSnapshot: func(s models.Snapshot) {
			select {
			case updates <- s:
			case <-ctx.Done():
			}
		},
		OnComplete: func(s models.Snapshot) { done <- watchEnd{snap: s} },
		OnError:    func(msg string) { done <- watchEnd{failed: msg} },
		OnVanished: func() { done <- watchEnd{vanished: true} },
	})
	defer unsubscribe()

	observe := func(s models.Snapshot) {
		result.Updates++
		result.Snapshot = s
		sendProgress(progress, snapshotUpdate(s))
	}

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case s := <-updates:
			observe(s)
		case end := <-done:
			// terminal snapshots are forwarded before the terminal callback fires
			for drained := false; !drained; {
				select {
				case s := <-updates:
					observe(s)
				default:
					drained = true
				}
			}
			return finishWatch(ctx, result, end, progress, rec)
		}
	}
}

func finishWatch(ctx context.Context, result *WatchResult, end watchEnd, progress chan<- ProgressUpdate, rec Recorder) (*WatchResult, error) {
	if end.vanished {
		result.Vanished = true
		sendProgress(progress, vanishedUpdate(result.TaskID))
		return result, fmt.Errorf("%w: %s", shared.ErrTaskVanished, result.TaskID)
	}

	if rec != nil {
		snap := result.Snapshot
		if snap.TaskID == "" {
			snap.TaskID = result.TaskID
		}
		result.RecordErr = rec.RecordSnapshot(ctx, snap)
	}

	if end.failed != "" {
		return result, fmt.Errorf("%w: %s", shared.ErrTaskFailed, end.failed)
	}
	return result, nil
}
