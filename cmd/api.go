package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/desertthunder/mrx/internal/services"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Health checks that the processor answers GET /api/health.
func (r *Runner) Health(ctx context.Context, cmd *cli.Command) error {
	r.logger.Debug("checking processor health", "base_url", r.client.BaseURL())

	health, err := r.client.Health(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(health, false)
	}

	r.writePlain("✓ %s is reachable\n", r.client.BaseURL())
	keys := make([]string, 0, len(health))
	for k := range health {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.writePlain("  %s: %v\n", k, health[k])
	}
	return nil
}

// APIGet makes a direct GET request to the processor
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	return r.rawRequest(ctx, http.MethodGet, cmd.StringArg("path"), cmd.Bool("pretty"))
}

// APIDelete makes a direct DELETE request to the processor
func (r *Runner) APIDelete(ctx context.Context, cmd *cli.Command) error {
	return r.rawRequest(ctx, http.MethodDelete, cmd.StringArg("path"), true)
}

func (r *Runner) rawRequest(ctx context.Context, method, path string, pretty bool) error {
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	r.logger.Info(method+" request", "path", path)

	resp, err := r.client.Raw(ctx, method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	return r.writeResponse(resp, pretty)
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}
	if err := r.writeBytes(resp.Body); err != nil {
		return err
	}
	return r.writeBytes([]byte("\n"))
}
