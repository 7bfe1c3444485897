// Package server exposes chain runs over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/valpere/devgenie/internal"
	"github.com/valpere/devgenie/internal/chains"
	"github.com/valpere/devgenie/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// Runner executes chain runs on behalf of the handlers.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*internal.RunResult, error)
	Registry() *chains.Registry
}

type Options struct {
	// APIKey is used when a request carries no key of its own.
	APIKey    string
	StaticDir string
	// FinalOutputLimit and StepOutputLimit bound response text; zero disables.
	FinalOutputLimit int
	StepOutputLimit  int
}

type Server struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

func New(runner Runner, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{runner: runner, opts: opts, logger: logger}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
