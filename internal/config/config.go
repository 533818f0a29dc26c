// Package config loads application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (ERASMO_* overrides, DATABASE_URL)
//  2. Config file (~/.erasmo/config.yaml or ./config.yaml)
//  3. Defaults
//
// Sensitive values are masked in MarshalJSON and String, so a Config can
// be logged safely. Validation is fail-fast: Load returns an error rather
// than a half-usable configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// Defaults for the answering pipeline.
const (
	// DefaultEmbedderModel truncates to 768 dimensions via
	// OutputDimensionality; the pgvector schema column matches.
	DefaultEmbedderModel     = "gemini-embedding-001"
	DefaultEmbedderDimension = 768
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// Model configuration
	Provider   string `mapstructure:"provider" json:"provider"`
	ModelName  string `mapstructure:"model_name" json:"model_name"`
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbedBatchSize    int    `mapstructure:"embed_batch_size" json:"embed_batch_size"`

	// Retrieval and chunking
	Namespace          string  `mapstructure:"namespace" json:"namespace"`
	TopK               int     `mapstructure:"top_k" json:"top_k"`
	ScoreThreshold     float64 `mapstructure:"score_threshold" json:"score_threshold"`
	ChunkMaxTokens     int     `mapstructure:"chunk_max_tokens" json:"chunk_max_tokens"`
	ChunkOverlapTokens int     `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`

	// Conversation memory
	MemoryMaxTurns int `mapstructure:"memory_max_turns" json:"memory_max_turns"`

	// Upstream resilience
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`
	MaxRetries            int `mapstructure:"max_retries" json:"max_retries"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration from defaults, file and environment, then
// validates it.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".erasmo")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("embed_batch_size", 20)

	viper.SetDefault("namespace", "default")
	viper.SetDefault("top_k", 5)
	viper.SetDefault("score_threshold", 0.7)
	viper.SetDefault("chunk_max_tokens", 180)
	viper.SetDefault("chunk_overlap_tokens", 36)

	viper.SetDefault("memory_max_turns", 200)

	viper.SetDefault("request_timeout_seconds", 30)
	viper.SetDefault("max_retries", 3)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "erasmo")
	viper.SetDefault("postgres_password", "erasmo_dev_password")
	viper.SetDefault("postgres_db_name", "erasmo")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "erasmo")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds runtime override variables explicitly.
// GEMINI_API_KEY and OPENAI_API_KEY are read by the genkit plugins
// directly, not through viper; Validate only checks their presence.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ERASMO_PROVIDER")
	mustBind("model_name", "ERASMO_MODEL_NAME")
	mustBind("ollama_host", "ERASMO_OLLAMA_HOST")
	mustBind("embedder_model", "ERASMO_EMBEDDER_MODEL")
	mustBind("namespace", "ERASMO_NAMESPACE")
	mustBind("otlp_endpoint", "ERASMO_OTLP_ENDPOINT")
	mustBind("environment", "ERASMO_ENVIRONMENT")
}

// FullModelName returns the provider-qualified model name for genkit,
// e.g. "googleai/gemini-2.5-flash". A name already containing "/" is
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// maskedValue avoids substring leaks that partial masks like "****"
// allow.
const maskedValue = "████████"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so printing a Config never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
