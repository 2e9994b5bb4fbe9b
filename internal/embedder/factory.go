package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"
)

// Config is the resolved embedding configuration.
type Config struct {
	// Backend is one of ollama, openai, azure, gemini.
	Backend string
	// Model is the embedding model name.
	Model string
	// APIKey is the credential for hosted backends.
	APIKey string
	// Endpoint is the backend base URL.
	Endpoint string
	// Dimensions requests a specific vector size where supported (0 = default).
	Dimensions int
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// ConfigFromEnv resolves a Config using cascading defaults that inherit from
// the chat provider configuration when embedding-specific overrides are not
// set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER; if unset, MODEL_PROVIDER when it names a backend
//     that can embed, otherwise ollama
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS requests a specific vector size
func ConfigFromEnv() *Config {
	backend := strings.ToLower(os.Getenv("EMBEDDING_PROVIDER"))
	if backend == "" {
		switch chat := strings.ToLower(os.Getenv("MODEL_PROVIDER")); chat {
		case "openai", "azure", "gemini":
			backend = chat
		default:
			backend = "ollama"
		}
	}

	cfg := &Config{
		Backend:    backend,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
	}

	switch backend {
	case "ollama":
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
		cfg.Model = firstNonEmpty(cfg.Model, defaultOllamaModel)
	case "openai":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, os.Getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1")
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
	case "azure":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("AZURE_OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT"))
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
	case "gemini":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("GOOGLE_API_KEY"))
		cfg.Model = firstNonEmpty(cfg.Model, defaultGeminiModel)
	}
	return cfg
}

// New constructs the rag.Embedder described by cfg.
func New(ctx context.Context, cfg *Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model}), nil
	case "openai":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/"),
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil
	default: // gemini; Validate rejects anything else
		return NewGeminiEmbedder(ctx, &GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model, Dimensions: cfg.Dimensions})
	}
}

// Validate reports configuration that cannot work, wrapping
// rag.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Backend {
	case "ollama":
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT: %w", rag.ErrConfiguration)
		}
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
	case "azure":
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT: %w", rag.ErrConfiguration)
		}
	case "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrConfiguration)
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini): %w", c.Backend, rag.ErrConfiguration)
	}
	if c.Model == "" {
		return fmt.Errorf("embedder: %s requires EMBEDDING_MODEL: %w", c.Backend, rag.ErrConfiguration)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must not be negative: %w", rag.ErrConfiguration)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
