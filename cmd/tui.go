package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/desertthunder/mrx/internal/tasks"
	"github.com/desertthunder/mrx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/mrx-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncer := tasks.NewClientSynchronizer(r.client, r.config.Sync, fileLogger)
	defer syncer.Close()

	opts := ui.ModelOpts{
		Backend:     r.client,
		Subscriber:  syncer,
		DownloadDir: r.config.Download.Dir,
		File:        cmd.StringArg("file"),
	}
	if repo, err := r.history(); err == nil {
		opts.History = repo
	} else {
		fileLogger.Warn("history unavailable", "error", err)
	}

	model := ui.NewModel(ctx, opts)
	defer model.Close()

	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
