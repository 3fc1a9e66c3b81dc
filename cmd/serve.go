package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/mrx/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the mock processor until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Mock
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Port = port
	}
	if d := cmd.Duration("step-delay"); d > 0 {
		cfg.StepDelay.Duration = d
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, r.config.Upload.MaxBytes, r.logger)
	r.writePlain("Mock processor running at http://%s (Ctrl+C to stop)\n", srv.Addr())
	return srv.ListenAndServe(ctx)
}
