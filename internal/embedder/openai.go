// Package embedder provides the rag.Embedder implementations used to index
// documents and questions. Ollama and OpenAI-compatible backends are called
// over their REST APIs; Gemini goes through the genai SDK.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OpenAIEmbedder calls the OpenAI embeddings API, or an Azure OpenAI
// deployment of it. It is safe for concurrent use.
type OpenAIEmbedder struct {
	url        string
	header     http.Header
	model      string
	dimensions int
	azure      bool
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure selects the api-key header and the deployments URL layout.
	Azure bool
	// APIVersion is the Azure OpenAI API version (e.g. "2025-04-01-preview").
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		url:        cfg.BaseURL + "/embeddings",
		header:     http.Header{},
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.Azure {
		e.url = cfg.BaseURL + "/deployments/" + url.PathEscape(cfg.Model) +
			"/embeddings?" + url.Values{"api-version": {cfg.APIVersion}}.Encode()
		e.header.Set("api-key", cfg.APIKey)
	} else {
		e.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return e
}

// Name implements rag.Named.
func (e *OpenAIEmbedder) Name() string {
	if e.azure {
		return "azure/" + e.model
	}
	return "openai/" + e.model
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per text, in input order. The API tags each
// vector with its input position and does not promise to keep the order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, e.url, e.header, req, &out); err != nil {
		return nil, fmt.Errorf("%s embedder: %w", e.backend(), err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%s embedder: %d texts, %d vectors", e.backend(), len(texts), len(out.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("%s embedder: bad or repeated index %d", e.backend(), d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) backend() string {
	if e.azure {
		return "azure"
	}
	return "openai"
}
