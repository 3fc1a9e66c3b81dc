package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/mrx/internal/formatter"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/repositories"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/desertthunder/mrx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// watchOpts are the follow-up actions shared by upload --watch and watch.
type watchOpts struct {
	download bool
	dir      string
	cleanup  bool
}

func watchOptsFrom(cmd *cli.Command) watchOpts {
	return watchOpts{
		download: cmd.Bool("download"),
		dir:      cmd.String("dir"),
		cleanup:  cmd.Bool("cleanup"),
	}
}

// Upload submits a JSON file and optionally follows the resulting task.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file to upload", shared.ErrMissingArgument)
	}

	r.logger.Info("uploading file", "path", path)

	resp, err := r.client.Upload(ctx, path)
	if err != nil {
		return err
	}

	r.remember("upload", func(repo *repositories.TaskRepository) error {
		_, err := repo.RecordUpload(resp)
		return err
	})

	r.writePlain("✓ Uploaded %s\n", resp.Filename)
	r.writePlain("Task: %s (%s)\n", resp.TaskID, resp.Status)

	if !cmd.Bool("watch") {
		r.writePlainln("Run 'mrx watch %s' to follow progress.", resp.TaskID)
		return nil
	}

	r.writePlain("\n")
	return r.follow(ctx, resp.TaskID, resp.Filename, watchOptsFrom(cmd))
}

// Watch follows a task until it completes, fails or disappears.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	taskID, err := taskArg(cmd)
	if err != nil {
		return err
	}
	return r.follow(ctx, taskID, "", watchOptsFrom(cmd))
}

func (r *Runner) follow(ctx context.Context, taskID, filename string, opts watchOpts) error {
	r.logger.Info("watching task", "task_id", taskID)

	syncer := r.synchronizer()
	defer syncer.Close()

	progressCh, wait := r.progressPrinter(50, func(update tasks.ProgressUpdate) {
		switch update.Phase {
		case tasks.Waiting:
			r.writePlain("⏳ %s\n", update.Message)
		case tasks.Processing:
			r.writePlain("⚙️  %s %s\n", formatter.ProgressBar(update.Step, 20), update.Message)
		case tasks.Completed:
			r.writePlain("✓ %s\n", update.Message)
		case tasks.Failed, tasks.Vanished:
			r.writePlain("✗ %s\n", update.Message)
		}
	})

	result, err := tasks.Watch(ctx, syncer, taskID, progressCh, r.recorder())
	wait()

	if result != nil && result.RecordErr != nil {
		r.logger.Warn("failed to record outcome", "task_id", taskID, "error", result.RecordErr)
	}

	switch {
	case errors.Is(err, shared.ErrTaskVanished):
		return err
	case errors.Is(err, shared.ErrTaskFailed):
		r.cleanupAfter(ctx, taskID, opts)
		return err
	case err != nil:
		return err
	}

	snap := result.Snapshot
	if snap.TaskID == "" {
		snap.TaskID = taskID
	}
	if snap.Filename == "" {
		snap.Filename = filename
	}

	r.writePlain("\n")
	r.writePlainHeader("Processing Complete!")
	r.writeBytes(mustRender(snap))

	if opts.download {
		if err := r.downloadAll(ctx, snap, opts.dir); err != nil {
			return err
		}
	}
	r.cleanupAfter(ctx, taskID, opts)
	return nil
}

// cleanupAfter deletes the remote task when requested; failures are only logged.
func (r *Runner) cleanupAfter(ctx context.Context, taskID string, opts watchOpts) {
	if !opts.cleanup {
		return
	}
	if err := r.client.Cleanup(ctx, taskID); err != nil {
		r.logger.Warn("cleanup failed", "task_id", taskID, "error", err)
		return
	}
	r.remember("cleanup", func(repo *repositories.TaskRepository) error { return repo.MarkCleanedUp(taskID) })
	r.writePlain("🧹 Remote task %s cleaned up\n", taskID)
}

// Status prints or saves a single snapshot of a task.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	taskID, err := taskArg(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	snap, err := r.client.Status(ctx, taskID)
	if err != nil {
		return err
	}
	if snap.TaskID == "" {
		snap.TaskID = taskID
	}

	if snap.Status.IsTerminal() {
		r.remember("status", func(repo *repositories.TaskRepository) error { return repo.RecordSnapshot(ctx, snap) })
	}

	if cmd.Bool("save") || cmd.String("output") != "" {
		path, err := formatter.WriteSnapshotExport(snap, format, cmd.String("output"))
		if err != nil {
			return err
		}
		r.logger.Info("snapshot saved", "path", path)
		return r.writePlain("✓ Snapshot saved to %s\n", path)
	}

	out, err := formatter.RenderSnapshot(snap, format)
	if err != nil {
		return err
	}
	return r.writeRendered(out, format, cmd.Bool("render"))
}

// Download fetches the artifacts of a completed task.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	taskID, err := taskArg(cmd)
	if err != nil {
		return err
	}

	types := []models.FileType{models.FileExcel, models.FileLog}
	if t := cmd.String("type"); t != "" {
		ft, err := models.ParseFileType(t)
		if err != nil {
			return fmt.Errorf("%w: --type: %v", shared.ErrInvalidFlag, err)
		}
		types = []models.FileType{ft}
	}

	if cmd.Bool("open") {
		for _, ft := range types {
			url := r.client.DownloadURL(taskID, ft)
			r.logger.Info("opening download link", "url", url)
			if err := shared.OpenBrowser(url); err != nil {
				return err
			}
		}
		return nil
	}

	snap, err := r.client.Status(ctx, taskID)
	if err != nil {
		return err
	}
	if snap.TaskID == "" {
		snap.TaskID = taskID
	}

	wanted := snap.Files[:0:0]
	for _, f := range snap.Files {
		for _, ft := range types {
			if f.Type == ft {
				wanted = append(wanted, f)
			}
		}
	}
	snap.Files = wanted

	return r.downloadAll(ctx, snap, cmd.String("dir"))
}

func (r *Runner) downloadAll(ctx context.Context, snap models.Snapshot, dir string) error {
	if dir == "" {
		dir = r.config.Download.Dir
	}

	progressCh, wait := r.progressPrinter(50, func(update tasks.ProgressUpdate) {
		r.writePlain("📥 %s\n", update.Message)
	})

	result, err := tasks.DownloadAll(ctx, progressCh, r.client, snap, tasks.DownloadOpts{
		Dir:        dir,
		NumWorkers: r.config.Download.Workers,
		RateLimit:  r.config.Download.RateLimit,
	})
	wait()

	if err != nil {
		return err
	}

	r.writePlain("\nDownloaded %d/%d files to %s\n", result.Successful, len(result.Files), result.Dir)
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d downloads failed", shared.ErrAPIRequest, result.Failed, len(result.Files))
	}
	return nil
}

// Cleanup deletes a task on the processor and marks it in the history.
func (r *Runner) Cleanup(ctx context.Context, cmd *cli.Command) error {
	taskID, err := taskArg(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("deleting task", "task_id", taskID)
	if err := r.client.Cleanup(ctx, taskID); err != nil {
		return err
	}

	r.remember("cleanup", func(repo *repositories.TaskRepository) error { return repo.MarkCleanedUp(taskID) })
	return r.writePlain("✓ Task %s deleted\n", taskID)
}

// mustRender renders a snapshot as text, which cannot fail.
func mustRender(snap models.Snapshot) []byte {
	out, _ := formatter.RenderSnapshot(snap, formatter.FormatText)
	return out
}
