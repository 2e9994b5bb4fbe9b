package translate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	translatev2 "google.golang.org/api/translate/v2"
)

// googleBatchLines caps the number of segments per Translations.List call.
const googleBatchLines = 100

// GoogleConfig configures the Google Cloud Translation v2 backend.
type GoogleConfig struct {
	// APIKey is the Cloud API key.
	APIKey string
	// Endpoint overrides the API base URL. Used by tests.
	Endpoint string
}

// Google translates with the Google Cloud Translation v2 API. Text is sent
// line by line so Markdown structure survives the round trip.
type Google struct {
	svc *translatev2.Service
}

// NewGoogle creates the Translation API client.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("translate: google backend requires GOOGLE_TRANSLATE_API_KEY")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := translatev2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("translate: create google client: %w", err)
	}
	return &Google{svc: svc}, nil
}

// Translate implements Translator.
func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	lines := strings.Split(text, "\n")

	// Only non-blank lines are sent; blank ones keep their place.
	var (
		segs []string
		pos  []int
	)
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			segs = append(segs, l)
			pos = append(pos, i)
		}
	}

	for start := 0; start < len(segs); start += googleBatchLines {
		end := min(start+googleBatchLines, len(segs))
		call := g.svc.Translations.List(segs[start:end], target).Format("text").Context(ctx)
		if source != "" && source != Auto {
			call = call.Source(source)
		}
		resp, err := call.Do()
		if err != nil {
			return "", fmt.Errorf("google translate: %w", err)
		}
		if len(resp.Translations) != end-start {
			return "", fmt.Errorf("google translate: expected %d translations, got %d", end-start, len(resp.Translations))
		}
		for i, tr := range resp.Translations {
			lines[pos[start+i]] = tr.TranslatedText
		}
	}
	return strings.Join(lines, "\n"), nil
}
