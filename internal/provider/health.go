package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthChecker probes a backend without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HTTPHealthCheck issues a GET against a cheap metadata endpoint of the
// backend and expects a 2xx reply.
type HTTPHealthCheck struct {
	// URL is the endpoint to probe.
	URL string
	// Header is added to the request, typically for credentials.
	Header http.Header
	// Client defaults to a client with a 5s timeout.
	Client *http.Client
}

// HealthCheck implements HealthChecker.
func (h *HTTPHealthCheck) HealthCheck(ctx context.Context) error {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health check %s: %w", h.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check %s: HTTP %d", h.URL, resp.StatusCode)
	}
	return nil
}

// HealthCheckFor returns a zero-cost probe for cfg's backend, or nil when the
// backend has no suitable endpoint.
func HealthCheckFor(cfg *Config) HealthChecker {
	switch cfg.Backend {
	case BackendOllama:
		return &HTTPHealthCheck{URL: strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags"}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &HTTPHealthCheck{
			URL:    strings.TrimRight(base, "/") + "/models",
			Header: http.Header{"Authorization": {"Bearer " + cfg.OpenAI.APIKey}},
		}
	case BackendAzure:
		az := cfg.AzureOpenAI
		return &HTTPHealthCheck{
			URL:    strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + az.APIVersion,
			Header: http.Header{"api-key": {az.APIKey}},
		}
	default:
		return nil
	}
}
