package main

import (
	"context"

	"github.com/desertthunder/mrx/internal/formatter"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/urfave/cli/v3"
)

// HistoryList prints recorded uploads, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = status
	}

	repo, err := r.history()
	if err != nil {
		return err
	}
	records, err := repo.List(criteria)
	if err != nil {
		return err
	}

	out, err := formatter.RenderHistory(records, format)
	if err != nil {
		return err
	}
	return r.writeRendered(out, format, cmd.Bool("render"))
}

// HistoryShow prints the recorded outcome of one task.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	taskID, err := taskArg(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	repo, err := r.history()
	if err != nil {
		return err
	}
	record, err := repo.GetByTaskID(taskID)
	if err != nil {
		return err
	}

	out, err := formatter.RenderSnapshot(record.Snapshot(), format)
	if err != nil {
		return err
	}
	if err := r.writeRendered(out, format, cmd.Bool("render")); err != nil {
		return err
	}
	if format == formatter.FormatText {
		r.writeRecordFooter(record)
	}
	return nil
}

func (r *Runner) writeRecordFooter(record *models.TaskRecord) {
	r.writePlain("Uploaded: %s\n", record.CreatedAt().Format("2006-01-02 15:04:05"))
	if at := record.CompletedAt(); at != nil {
		r.writePlain("Finished: %s\n", at.Format("2006-01-02 15:04:05"))
	}
	if record.CleanedUp() {
		r.writePlain("Remote task cleaned up\n")
	}
}
