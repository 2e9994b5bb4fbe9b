package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Errorf("Embed() = %v", got)
	}
	if e.Name() != "ollama/nomic-embed-text" {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestOllamaEmbedder_NonJSONError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}).Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("Embed() error = %v, want HTTP 502", err)
	}
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`))
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("Embed() = %v, want ordered by index", got)
	}
}

func TestOpenAIEmbedder_AzureRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/emb/embeddings" || r.URL.Query().Get("api-version") != "2025-04-01-preview" {
			t.Errorf("unexpected URL %s", r.URL)
		}
		if r.Header.Get("api-key") != "az-key" {
			t.Errorf("api-key header missing")
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL + "/openai", APIKey: "az-key", Model: "emb",
		Azure: true, APIVersion: "2025-04-01-preview",
	})
	_, err := e.Embed(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Embed() error = %v, want rate limited", err)
	}
	if e.Name() != "azure/emb" {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestConfigFromEnv_InheritsChatProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-chat")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	t.Setenv("OPENAI_BASE_URL", "")

	cfg := ConfigFromEnv()
	if cfg.Backend != "openai" || cfg.APIKey != "sk-chat" || cfg.Model != defaultOpenAIModel {
		t.Errorf("ConfigFromEnv() = %+v", cfg)
	}
	if cfg.Endpoint != "https://api.openai.com/v1" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
}

func TestConfigFromEnv_ArkFallsBackToOllama(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "ark")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	t.Setenv("EMBEDDING_MODEL", "")

	cfg := ConfigFromEnv()
	if cfg.Backend != "ollama" || cfg.Endpoint != "http://gpu-box:11434" || cfg.Model != defaultOllamaModel {
		t.Errorf("ConfigFromEnv() = %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama ok", Config{Backend: "ollama", Endpoint: "http://x", Model: "m"}, false},
		{"ollama no endpoint", Config{Backend: "ollama", Model: "m"}, true},
		{"openai no key", Config{Backend: "openai", Model: "m"}, true},
		{"azure no endpoint", Config{Backend: "azure", APIKey: "k", Model: "m"}, true},
		{"gemini ok", Config{Backend: "gemini", APIKey: "k", Model: "text-embedding-004"}, false},
		{"no model", Config{Backend: "openai", APIKey: "k"}, true},
		{"negative dims", Config{Backend: "openai", APIKey: "k", Model: "m", Dimensions: -1}, true},
		{"bedrock", Config{Backend: "bedrock", Model: "m"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, rag.ErrConfiguration) {
				t.Errorf("Validate() = %v, want rag.ErrConfiguration", err)
			}
		})
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"text-embedding-004":     false,
		"gemma:2b":               true,
		"gpt-4o":                 true,
		"llama3.1":               true,
		"mxbai-embed-large":      false,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestEmbedder_StatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		temporary bool
	}{
		{"ollama string error", http.StatusNotFound, `{"error":"model \"nomic\" not found"}`, `HTTP 404: model "nomic" not found`, false},
		{"openai object error", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, "HTTP 401: bad key", false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, "HTTP 429: slow down", true},
		{"proxy page", http.StatusServiceUnavailable, "<html>down</html>", "HTTP 503", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}).Embed(context.Background(), []string{"a"})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Embed() error = %v, want *StatusError", err)
			}
			if se.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", se.Error(), tt.wantMsg)
			}
			if se.Temporary() != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", se.Temporary(), tt.temporary)
			}
		})
	}
}

func TestOpenAIEmbedder_RejectsRepeatedIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"}).Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "repeated index 0") {
		t.Errorf("Embed() error = %v, want repeated index", err)
	}
}
