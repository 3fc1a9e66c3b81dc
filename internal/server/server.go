package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 5 * time.Second

// Server runs the mock report processor.
type Server struct {
	proc   *Processor
	router *BasicRouter
	addr   string
	logger *log.Logger
}

// NewServer wires a [Processor] and its [API] behind a logging router using the [mock] config section.
func NewServer(cfg shared.MockConfig, maxUploadBytes int64, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	proc := NewProcessor(ProcessorOpts{
		StepDelay: cfg.StepDelay.Duration,
		TTL:       cfg.TTL.Duration,
		Logger:    shared.WithLogger(logger, "component", "processor"),
	})

	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger))
	NewAPI(proc, APIOpts{MaxUploadBytes: maxUploadBytes, Logger: logger}).Register(router)

	return &Server{
		proc:   proc,
		router: router,
		addr:   net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		logger: logger,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the root handler, for use with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Processor returns the simulated processor behind the API.
func (s *Server) Processor() *Processor { return s.proc }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	defer s.proc.Close()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock processor listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down mock processor")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
