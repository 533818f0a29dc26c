package config

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel validation errors, checked with errors.Is().
var (
	ErrConfigNil           = errors.New("configuration is nil")
	ErrInvalidProvider     = errors.New("invalid provider")
	ErrMissingAPIKey       = errors.New("missing API key")
	ErrInvalidModelName    = errors.New("invalid model name")
	ErrInvalidEmbedder     = errors.New("invalid embedder settings")
	ErrInvalidRetrieval    = errors.New("invalid retrieval settings")
	ErrInvalidChunking     = errors.New("invalid chunking settings")
	ErrInvalidMemoryTurns  = errors.New("invalid memory turn limit")
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
	ErrInvalidSSLMode      = errors.New("invalid PostgreSQL SSL mode")
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks every field range and the presence of the provider API
// key. It returns the first violation found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		// Local provider, no key.
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDimension < 1 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidEmbedder, c.EmbedderDimension)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidEmbedder, c.EmbedBatchSize)
	}

	if c.Namespace == "" {
		return fmt.Errorf("%w: namespace is empty", ErrInvalidRetrieval)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score_threshold %v not in [0,1]", ErrInvalidRetrieval, c.ScoreThreshold)
	}

	if c.ChunkMaxTokens < 1 {
		return fmt.Errorf("%w: chunk_max_tokens %d", ErrInvalidChunking, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: overlap %d must satisfy 0 <= overlap < %d",
			ErrInvalidChunking, c.ChunkOverlapTokens, c.ChunkMaxTokens)
	}

	if c.MemoryMaxTurns < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMemoryTurns, c.MemoryMaxTurns)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidSSLMode, c.PostgresSSLMode)
	}

	return nil
}
