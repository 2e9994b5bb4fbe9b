package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Backend names a translation backend.
type Backend string

const (
	// BackendGoogle uses Google Cloud Translation v2.
	BackendGoogle Backend = "google"
	// BackendLLM prompts the configured chat model.
	BackendLLM Backend = "llm"
	// BackendNone disables translation.
	BackendNone Backend = "none"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is google, llm, or none. Env: TRANSLATE_PROVIDER.
	Backend Backend
	// GoogleAPIKey is used by the google backend. Env: GOOGLE_TRANSLATE_API_KEY.
	GoogleAPIKey string
}

// NewBackend builds the Translator for cfg. gen is required by the llm
// backend only.
func NewBackend(ctx context.Context, cfg Config, gen rag.Generator) (Translator, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendGoogle:
		g, err := NewGoogle(ctx, GoogleConfig{APIKey: cfg.GoogleAPIKey})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		return g, nil
	case BackendLLM:
		if gen == nil {
			return nil, fmt.Errorf("translate: llm backend requires a generator: %w", rag.ErrConfiguration)
		}
		return NewLLM(gen), nil
	case BackendNone, "":
		return Passthrough{}, nil
	default:
		return nil, fmt.Errorf("translate: unknown backend %q (valid: google, llm, none): %w", cfg.Backend, rag.ErrConfiguration)
	}
}
