package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/formatter"
	"github.com/desertthunder/mrx/internal/repositories"
	"github.com/desertthunder/mrx/internal/services"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/desertthunder/mrx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	client *services.JobClient
	logger *log.Logger
	output io.Writer
	db     *sql.DB
	tasks  *repositories.TaskRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Client *services.JobClient
	Logger *log.Logger
	Output io.Writer
	DB     *sql.DB // Opened lazily from Config.Database when nil
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Client == nil {
		opts.Client = services.NewJobClient(services.JobClientOpts{
			BaseURL:        opts.Config.Server.BaseURL,
			RateLimit:      opts.Config.Server.RateLimit,
			MaxUploadBytes: opts.Config.Upload.MaxBytes,
		})
	}

	r := &Runner{
		config: opts.Config,
		client: opts.Client,
		logger: opts.Logger,
		output: opts.Output,
		db:     opts.DB,
	}
	if r.db != nil {
		r.tasks = repositories.NewTaskRepository(r.db)
	}
	return r
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the history database if the runner opened one.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		uploadCommand, watchCommand, statusCommand, downloadCommand, cleanupCommand,
		historyCommand, healthCommand, apiCommand, setupCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// history opens the upload history on first use.
func (r *Runner) history() (*repositories.TaskRepository, error) {
	if r.tasks != nil {
		return r.tasks, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	r.db = db
	r.tasks = repositories.NewTaskRepository(db)
	return r.tasks, nil
}

// recorder returns the history as a [tasks.Recorder], or nil when it cannot be opened.
func (r *Runner) recorder() tasks.Recorder {
	repo, err := r.history()
	if err != nil {
		r.logger.Warn("history unavailable, outcome will not be recorded", "error", err)
		return nil
	}
	return repo
}

// remember applies fn to the history, logging instead of failing the command.
func (r *Runner) remember(what string, fn func(*repositories.TaskRepository) error) {
	repo, err := r.history()
	if err == nil {
		err = fn(repo)
	}
	if err != nil && !errors.Is(err, shared.ErrRecordNotFound) {
		r.logger.Warn("failed to update history", "op", what, "error", err)
	}
}

func (r *Runner) synchronizer() *tasks.Synchronizer {
	return tasks.NewClientSynchronizer(r.client, r.config.Sync, r.logger)
}

// progressPrinter drains updates on a goroutine; the returned func waits for it to finish.
func (r *Runner) progressPrinter(size int, print func(tasks.ProgressUpdate)) (chan tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, size)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			print(update)
		}
	}()
	return progressCh, func() {
		close(progressCh)
		<-done
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeRendered writes formatter output, styling markdown for the terminal when asked.
func (r *Runner) writeRendered(out []byte, format formatter.Format, render bool) error {
	if render && format == formatter.FormatMarkdown {
		styled, err := formatter.RenderTerminal(out, 0)
		if err != nil {
			return err
		}
		out = styled
	}
	return r.writeBytes(out)
}

func (r *Runner) writePlain(format string, args ...any) error {
	return r.writeBytes([]byte(fmt.Sprintf(format, args...)))
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writeBytes([]byte("\n" + fmt.Sprintf(format, args...) + "\n"))
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// taskArg reads the required task id argument.
func taskArg(cmd *cli.Command) (string, error) {
	taskID := cmd.StringArg("task")
	if taskID == "" {
		return "", fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	return taskID, nil
}
