package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder calls the /api/embed endpoint of a local Ollama server.
// It is safe for concurrent use.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
// Local models can be slow to load, hence the generous client timeout.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    strings.TrimRight(cfg.Host, "/") + "/api/embed",
		model:  cfg.Model,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name implements rag.Named.
func (e *OllamaEmbedder) Name() string { return "ollama/" + e.model }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out ollamaEmbedResponse
	if err := postJSON(ctx, e.client, e.url, nil, ollamaEmbedRequest{Model: e.model, Input: texts}, &out); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: %d texts, %d vectors", len(texts), len(out.Embeddings))
	}
	return out.Embeddings, nil
}
