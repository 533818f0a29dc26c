package config

import (
	"errors"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Provider:              ProviderOllama,
		ModelName:             "llama3.2",
		EmbedderModel:         DefaultEmbedderModel,
		EmbedderDimension:     DefaultEmbedderDimension,
		EmbedBatchSize:        20,
		Namespace:             "default",
		TopK:                  5,
		ScoreThreshold:        0.7,
		ChunkMaxTokens:        180,
		ChunkOverlapTokens:    36,
		MemoryMaxTurns:        200,
		RequestTimeoutSeconds: 30,
		MaxRetries:            3,
		PostgresHost:          "localhost",
		PostgresPort:          5432,
		PostgresUser:          "erasmo",
		PostgresPassword:      "secret",
		PostgresDBName:        "erasmo",
		PostgresSSLMode:       "disable",
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateNilConfig(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "missing gemini key",
			mutate:  func(c *Config) { c.Provider = ProviderGemini },
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "missing openai key",
			mutate:  func(c *Config) { c.Provider = ProviderOpenAI },
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedder,
		},
		{
			name:    "zero embedder dimension",
			mutate:  func(c *Config) { c.EmbedderDimension = 0 },
			wantErr: ErrInvalidEmbedder,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.EmbedBatchSize = 0 },
			wantErr: ErrInvalidEmbedder,
		},
		{
			name:    "empty namespace",
			mutate:  func(c *Config) { c.Namespace = "" },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "zero top_k",
			mutate:  func(c *Config) { c.TopK = 0 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.ScoreThreshold = 1.5 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.ScoreThreshold = -0.1 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.ChunkMaxTokens = 0 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "overlap equal to chunk size",
			mutate:  func(c *Config) { c.ChunkOverlapTokens = c.ChunkMaxTokens },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.ChunkOverlapTokens = -1 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "zero memory turns",
			mutate:  func(c *Config) { c.MemoryMaxTurns = 0 },
			wantErr: ErrInvalidMemoryTurns,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "postgres port zero",
			mutate:  func(c *Config) { c.PostgresPort = 0 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "unknown sslmode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "yes-please" },
			wantErr: ErrInvalidSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")

			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAPIKeyPresence(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg := validConfig()
	cfg.Provider = ProviderGemini
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with GEMINI_API_KEY set = %v, want nil", err)
	}
}
