package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erasmolabs/erasmo/db"
	"github.com/erasmolabs/erasmo/internal/advisor"
	"github.com/erasmolabs/erasmo/internal/backoff"
	"github.com/erasmolabs/erasmo/internal/config"
	"github.com/erasmolabs/erasmo/internal/knowledge"
	"github.com/erasmolabs/erasmo/internal/log"
	"github.com/erasmolabs/erasmo/internal/observability"
	"github.com/erasmolabs/erasmo/internal/session"
)

// Setup initializes all application components from the configuration.
// On failure, everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.otelShutdown = otelShutdown

	pool, err := setupPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := setupGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	provider := lookupEmbedder(g, cfg)
	if provider == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	embedder := knowledge.NewEmbedder(provider, knowledge.EmbedderConfig{
		ModelVersion: cfg.EmbedderModel,
		Dimension:    cfg.EmbedderDimension,
		BatchSize:    cfg.EmbedBatchSize,
	}, logger)

	index := knowledge.NewPostgresIndex(pool, logger)
	docs := knowledge.NewPostgresDocuments(pool, logger)

	store := session.NewPostgresStore(pool, logger)
	a.Store = store
	memory := session.NewMemory(logger,
		session.WithStore(store),
		session.WithMaxTurns(cfg.MemoryMaxTurns),
	)

	model := genkit.LookupModel(g, cfg.FullModelName())
	if model == nil {
		return nil, fmt.Errorf("model %q not found for provider %q", cfg.ModelName, cfg.Provider)
	}

	retry := backoff.DefaultConfig()
	retry.MaxRetries = cfg.MaxRetries
	synth, err := advisor.NewSynthesizer(g, model, advisor.SynthesizerConfig{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Retry:   retry,
	}, logger)
	if err != nil {
		return nil, err
	}

	adv, err := advisor.New(embedder, index, memory, synth, docs, advisor.Config{
		Namespace:          cfg.Namespace,
		TopK:               cfg.TopK,
		ScoreThreshold:     float32(cfg.ScoreThreshold),
		ChunkMaxTokens:     cfg.ChunkMaxTokens,
		ChunkOverlapTokens: cfg.ChunkOverlapTokens,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Advisor = adv

	return a, nil
}

// setupPool runs migrations and opens the connection pool.
func setupPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// setupGenkit initializes genkit with the configured AI provider plugin.
func setupGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no model auto-discovery.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit", "provider", cfg.Provider,
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)

	default: // gemini and googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
	}

	return g, nil
}

// lookupEmbedder resolves the embedder registered by the provider plugin.
func lookupEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
