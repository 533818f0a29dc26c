package cmd

import (
	"context"
	"fmt"

	"github.com/erasmolabs/erasmo/internal/app"
	"github.com/erasmolabs/erasmo/internal/config"
)

// loadApp loads configuration and initializes the application container.
// Callers own the returned App and must Close it.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
