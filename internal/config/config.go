// Package config loads runtime configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultDBPath       = "voxindex.db"
	DefaultProvider     = "ollama"
	DefaultEmbeddingDim = 768
	DefaultWorkers      = 4
)

// Config carries every runtime knob the server reads at startup.
type Config struct {
	// DBPath is the sqlite database file, or ":memory:" for tests.
	DBPath string

	// EmbeddingProvider selects the embedding backend: "ollama",
	// "openai" or "local".
	EmbeddingProvider string

	// EmbeddingDim is the expected vector dimensionality. Stored vectors
	// are validated against it on write.
	EmbeddingDim int

	// Workers bounds the parse worker pool.
	Workers int

	// OllamaHost is the Ollama base URL (provider "ollama").
	OllamaHost string

	// OpenAIKey is the API key for provider "openai".
	OpenAIKey string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win over file entries.
func Load() (*Config, error) {
	// Missing .env is the normal production case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:            envOr("VOXINDEX_DB_PATH", DefaultDBPath),
		EmbeddingProvider: envOr("VOXINDEX_EMBEDDING_PROVIDER", DefaultProvider),
		OllamaHost:        envOr("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
	}

	var err error
	if cfg.EmbeddingDim, err = envInt("VOXINDEX_EMBEDDING_DIM", DefaultEmbeddingDim); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envInt("VOXINDEX_WORKERS", DefaultWorkers); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.EmbeddingProvider {
	case "ollama", "openai", "local":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == "openai" && c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDim)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
