// Package app wires configuration, storage, the AI provider and the
// advisor engine into a runnable application container.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erasmolabs/erasmo/internal/advisor"
	"github.com/erasmolabs/erasmo/internal/config"
	"github.com/erasmolabs/erasmo/internal/log"
	"github.com/erasmolabs/erasmo/internal/session"
)

// App holds the initialized application components. Construct with Setup
// and release with Close.
type App struct {
	Config  *config.Config
	Logger  log.Logger
	Genkit  *genkit.Genkit
	Pool    *pgxpool.Pool
	Store   *session.PostgresStore
	Advisor *advisor.Advisor

	otelShutdown func(context.Context) error
}

// Close releases resources in reverse initialization order.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}
