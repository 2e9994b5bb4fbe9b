package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/provider"
)

// LLMPinger probes a chat model backend through a zero-cost metadata
// endpoint. Backends without one (gemini, ark) get no LLM probe at all:
// spending tokens on every readiness check is not worth it.
type LLMPinger struct {
	check provider.HealthChecker
	name  string
}

// NewLLMPinger returns a pinger for cfg's backend, or nil when the backend
// has no cheap health endpoint.
func NewLLMPinger(cfg *provider.Config) *LLMPinger {
	hc := provider.HealthCheckFor(cfg)
	if hc == nil {
		return nil
	}
	return &LLMPinger{check: hc, name: string(cfg.Backend)}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping calls the backend health endpoint.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.check.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// QdrantPinger probes the Qdrant index backend using its HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger adapts any store that can check its own connection, such as
// *index.PgvectorStore, into a named Pinger.
type StorePinger struct {
	store interface{ Ping(context.Context) error }
	name  string
}

// NewStorePinger wraps s under name (e.g. "postgres").
func NewStorePinger(name string, s interface{ Ping(context.Context) error }) *StorePinger {
	return &StorePinger{store: s, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping delegates to the wrapped store.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}
