package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Server wraps an http.Server around an Adapter with graceful shutdown.
type Server struct {
	httpServer      *http.Server
	adapter         *Adapter
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithShutdownTimeout sets how long Shutdown waits for in-flight
// requests to drain.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.shutdownTimeout = d }
}

// WithReadTimeout sets the http.Server read timeout.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.httpServer.ReadTimeout = d }
}

// WithWriteTimeout sets the http.Server write timeout. Streaming
// responses are bounded by this, so it should comfortably exceed the
// longest expected generation.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.httpServer.WriteTimeout = d }
}

// WithHTTPMiddleware wraps the adapter's handler with HTTP-level
// middleware such as authentication. Middleware is applied in the
// given order, outermost first.
func WithHTTPMiddleware(middlewares ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) {
		h := s.httpServer.Handler
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		s.httpServer.Handler = h
	}
}

// NewServer creates a Server for the given adapter.
func NewServer(adapter *Adapter, opts ...ServerOption) *Server {
	s := &Server{
		adapter:         adapter,
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
		httpServer: &http.Server{
			Addr:    adapter.config.Addr,
			Handler: adapter.Handler(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe starts the server and blocks until ctx is cancelled,
// SIGINT or SIGTERM is received, or the listener fails. On signal it
// drains in-flight requests for up to the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down", "timeout", s.shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// ServeOn serves on an existing listener. Intended for tests where the
// caller controls the listener lifecycle.
func (s *Server) ServeOn(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
