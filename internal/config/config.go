// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CONCIERGE_ prefix)
//  2. Config file (~/.concierge/config.yaml or ./config.yaml)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidSampling indicates a sampling knob is out of range.
	ErrInvalidSampling = errors.New("invalid sampling option")

	// ErrInvalidDimensions indicates the embedding dimensionality is invalid.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidVectorBackend indicates an unsupported vector backend.
	ErrInvalidVectorBackend = errors.New("invalid vector backend")

	// ErrInvalidMaxResults indicates the retrieval result cap is invalid.
	ErrInvalidMaxResults = errors.New("invalid max results")

	// ErrMissingPostgresURL indicates the pgvector backend was selected
	// without a connection string.
	ErrMissingPostgresURL = errors.New("missing postgres URL")
)

// Vector backend identifiers used in Config.VectorBackend.
const (
	VectorBackendChroma   = "chroma"
	VectorBackendPgvector = "pgvector"
)

// DefaultEmbedDimensions matches the nomic-embed-text model output.
const DefaultEmbedDimensions = 768

// Config stores application configuration.
type Config struct {
	// Relational storage (user profiles and the conversation log)
	DatabasePath string `mapstructure:"database_path" json:"database_path"`

	// Ollama provider configuration
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`
	CompletionModel string `mapstructure:"completion_model" json:"completion_model"`
	EmbedModel      string `mapstructure:"embed_model" json:"embed_model"`
	EmbedDimensions int    `mapstructure:"embed_dimensions" json:"embed_dimensions"`

	// Sampling options passed through to the completion provider unmodified
	NumPredict  int     `mapstructure:"num_predict" json:"num_predict"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	TopP        float64 `mapstructure:"top_p" json:"top_p"`
	TopK        int     `mapstructure:"top_k" json:"top_k"`
	NumCtx      int     `mapstructure:"num_ctx" json:"num_ctx"`

	// Vector index configuration
	VectorBackend    string `mapstructure:"vector_backend" json:"vector_backend"`
	ChromaURL        string `mapstructure:"chroma_url" json:"chroma_url"`
	ChromaCollection string `mapstructure:"chroma_collection" json:"chroma_collection"`
	PostgresURL      string `mapstructure:"postgres_url" json:"postgres_url"` // SENSITIVE: may embed credentials

	// Retrieval configuration
	MaxResults int `mapstructure:"max_results" json:"max_results"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Tracing (optional; disabled when endpoint is empty)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".concierge")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, configDir)

	v.SetEnvPrefix("CONCIERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database_path", filepath.Join(configDir, "concierge.db"))

	// Ollama defaults (local daemon)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("completion_model", "mistral:7b-instruct-q4_K_M")
	v.SetDefault("embed_model", "nomic-embed-text")
	v.SetDefault("embed_dimensions", DefaultEmbedDimensions)

	// Sampling defaults
	v.SetDefault("num_predict", 1024)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("top_k", 40)
	v.SetDefault("num_ctx", 2048)

	// Vector index defaults
	v.SetDefault("vector_backend", VectorBackendChroma)
	v.SetDefault("chroma_url", "http://localhost:8888")
	v.SetDefault("chroma_collection", "user_context")

	// Retrieval defaults
	v.SetDefault("max_results", 5)

	// Server defaults
	v.SetDefault("server_addr", "127.0.0.1:3500")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// Tracing defaults (disabled unless an endpoint is configured)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("environment", "dev")
}

// Validate checks configuration values and fails fast with sentinel errors.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
	}
	if c.CompletionModel == "" {
		return fmt.Errorf("%w: completion_model is empty", ErrInvalidModelName)
	}
	if c.EmbedModel == "" {
		return fmt.Errorf("%w: embed_model is empty", ErrInvalidModelName)
	}
	if c.EmbedDimensions <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, c.EmbedDimensions)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %g not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p %g not in (0, 1]", ErrInvalidSampling, c.TopP)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k %d must be positive", ErrInvalidSampling, c.TopK)
	}
	if c.NumPredict <= 0 {
		return fmt.Errorf("%w: num_predict %d must be positive", ErrInvalidSampling, c.NumPredict)
	}
	if c.NumCtx <= 0 {
		return fmt.Errorf("%w: num_ctx %d must be positive", ErrInvalidSampling, c.NumCtx)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("%w: %d must be positive", ErrInvalidMaxResults, c.MaxResults)
	}

	switch c.VectorBackend {
	case VectorBackendChroma:
		if !strings.HasPrefix(c.ChromaURL, "http://") && !strings.HasPrefix(c.ChromaURL, "https://") {
			return fmt.Errorf("%w: chroma_url %q must be an HTTP URL", ErrInvalidVectorBackend, c.ChromaURL)
		}
	case VectorBackendPgvector:
		if c.PostgresURL == "" {
			return fmt.Errorf("%w: vector_backend is pgvector", ErrMissingPostgresURL)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: chroma, pgvector", ErrInvalidVectorBackend, c.VectorBackend)
	}

	return nil
}

// SlogLevel maps the configured log level string to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
