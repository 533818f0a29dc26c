// Package api exposes the advisor over HTTP.
//
// Endpoints:
//
//	POST /api/advise          answer a question within a session
//	POST /api/ingest          add a document to the knowledge base
//	GET  /api/sessions        list recent sessions
//	GET  /api/sessions/{id}   session metadata plus recent turns
//	GET  /health              liveness probe
//	GET  /ready               readiness probe (pings the database)
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: logging and panic recovery
//   - advise.go: answer and ingest endpoints
//   - sessions.go: session endpoints
//   - health.go: probes
//   - response.go: JSON helpers and error mapping
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/erasmolabs/erasmo/internal/log"
)

const (
	// DefaultAddr binds to loopback; put a reverse proxy in front for
	// external exposure.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout must cover a full synthesis round trip.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP front for the advisor.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	advise   *AdviseHandler
	sessions *SessionHandler
	health   *HealthHandler
}

// NewServer creates a server with all routes registered.
func NewServer(advisor AdvisorService, store SessionStore, pinger Pinger, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		logger:   logger,
		advise:   NewAdviseHandler(advisor, logger),
		sessions: NewSessionHandler(store, logger),
		health:   NewHealthHandler(pinger, logger),
	}

	s.advise.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)
	s.health.RegisterRoutes(mux)

	return s
}

// Handler returns the mux with middleware applied.
// Middleware order: recovery, then logging, then handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
