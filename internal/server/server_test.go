package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/translate"
)

// fakeAssistant is a test double for the Assistant interface.
type fakeAssistant struct {
	mu sync.Mutex

	// askErr is returned by Ask; reply is returned otherwise.
	askErr error
	reply  agent.Reply
	asked  []agent.Question

	// uploadErr is returned by SaveUpload and AddWeb.
	uploadErr error
	uploaded  []string
	webURL    string
	webText   string

	// ingestErr is returned by Ingest; ingested records the ids.
	ingestErr error
	ingested  []string
	// ingestDone is closed by Ingest when non-nil.
	ingestDone chan struct{}

	// history is returned by History.
	history    []store.Exchange
	historyArg struct {
		source string
		n      int
	}
}

func (f *fakeAssistant) Ask(_ context.Context, q agent.Question) (agent.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, q)
	if f.askErr != nil {
		return agent.Reply{}, f.askErr
	}
	return f.reply, nil
}

func (f *fakeAssistant) SaveUpload(_ context.Context, name string, r io.Reader) (store.Document, error) {
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return store.Document{}, f.uploadErr
	}
	f.uploaded = append(f.uploaded, name+":"+string(data))
	return store.Document{ID: "doc-1.txt", Format: rag.FormatTXT, Name: name}, nil
}

func (f *fakeAssistant) AddWeb(_ context.Context, url, text string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return store.Document{}, f.uploadErr
	}
	f.webURL, f.webText = url, text
	return store.Document{ID: "web-0123456789abcdef", Format: rag.FormatWeb, URL: url}, nil
}

func (f *fakeAssistant) Ingest(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, id)
	if f.ingestDone != nil {
		close(f.ingestDone)
		f.ingestDone = nil
	}
	return f.ingestErr
}

func (f *fakeAssistant) Status(_ context.Context, id string) (agent.DocumentStatus, error) {
	if id == "missing" {
		return agent.DocumentStatus{}, fmt.Errorf("agent: %q: %w", id, agent.ErrUnknownDocument)
	}
	return agent.DocumentStatus{
		Document: store.Document{ID: id},
		Status:   pipeline.Status{ID: id, State: pipeline.StateReady, Chunks: 2},
	}, nil
}

func (f *fakeAssistant) History(_ context.Context, source string, n int) ([]store.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyArg.source, f.historyArg.n = source, n
	return f.history, nil
}

// newTestServer builds a Server around a with an isolated metrics registry
// and a discarded log.
func newTestServer(t *testing.T, a Assistant, opts ...func(*Config)) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	}
	for _, o := range opts {
		o(cfg)
	}
	s, err := New(a, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// do sends req through the full middleware stack.
func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestNew_NilAssistant(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil assistant")
	}
}

func TestHandleAsk_OK(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{reply: agent.Reply{
		Answer:    "4,2 millions d'euros",
		Lang:      "fr",
		Mode:      rag.ModeGrounded,
		Grounding: []rag.Chunk{{Source: "report.pdf", Text: "Revenue 4.2M"}},
	}}
	s := newTestServer(t, fa)

	w := do(s, jsonRequest(http.MethodPost, "/api/ask",
		`{"question":"Quel est le chiffre d'affaires ?","lang":"fr","source":"report.pdf"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	if len(fa.asked) != 1 {
		t.Fatalf("expected 1 Ask call, got %d", len(fa.asked))
	}
	q := fa.asked[0]
	if q.Lang != "fr" || q.DocumentID != "report.pdf" {
		t.Errorf("question not forwarded intact: %+v", q)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["answer"] != "4,2 millions d'euros" {
		t.Errorf("answer: got %v", got["answer"])
	}
	if got["mode"] != "grounded" {
		t.Errorf("mode: expected grounded, got %v", got["mode"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleAsk_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed json", `{"question":`, ""},
		{"missing question", `{"lang":"de"}`, "Question"},
		{"lang too long", `{"question":"q","lang":"` + strings.Repeat("x", 40) + `"}`, "Lang"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fa := &fakeAssistant{}
			s := newTestServer(t, fa)
			w := do(s, jsonRequest(http.MethodPost, "/api/ask", tc.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d, body: %s", w.Code, w.Body.String())
			}
			if len(fa.asked) != 0 {
				t.Error("assistant must not be called for an invalid request")
			}
			if tc.field == "" {
				return
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if _, ok := resp.Fields[tc.field]; !ok {
				t.Errorf("expected a reason for field %q, got %v", tc.field, resp.Fields)
			}
		})
	}
}

func TestHandleAsk_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported language", fmt.Errorf("translate: %q: %w", "xx!", translate.ErrUnsupportedLanguage), http.StatusBadRequest},
		{"empty question", agent.ErrEmptyQuestion, http.StatusBadRequest},
		{"unknown document", fmt.Errorf("agent: %w", agent.ErrUnknownDocument), http.StatusNotFound},
		{"unsupported format", fmt.Errorf("%w: extension %q", rag.ErrUnsupportedFormat, ".doc"), http.StatusUnprocessableEntity},
		{"load failure", fmt.Errorf("loader: %w", rag.ErrDocumentLoad), http.StatusUnprocessableEntity},
		{"empty document", rag.ErrEmptyDocument, http.StatusUnprocessableEntity},
		{"generation provider", &rag.GenerationProviderError{Provider: "ollama", Err: errors.New("refused")}, http.StatusBadGateway},
		{"embedding provider", &rag.EmbeddingProviderError{Provider: "ollama", Err: errors.New("refused")}, http.StatusBadGateway},
		{"translation backend", fmt.Errorf("translate: %w", translate.ErrTranslation), http.StatusBadGateway},
		{"generation timeout", &rag.GenerationTimeoutError{Provider: "ollama", Timeout: time.Minute}, http.StatusGatewayTimeout},
		{"configuration", fmt.Errorf("config: %w", rag.ErrConfiguration), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeAssistant{askErr: tc.err})
			w := do(s, jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d, body: %s", tc.want, w.Code, w.Body.String())
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestHandleAsk_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeAssistant{askErr: &rag.GenerationTimeoutError{Provider: "ollama", Timeout: time.Second}})
	w := do(s, jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`))
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on a retryable failure")
	}
}

func TestHandleAsk_InternalErrorNotLeaked(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeAssistant{askErr: errors.New("dial tcp 10.1.2.3:5432: secret detail")})
	w := do(s, jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret detail") {
		t.Errorf("internal error leaked to client: %s", w.Body.String())
	}
}

// multipartUpload builds a POST /api/documents request carrying content as
// the "file" field.
func multipartUpload(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUpload_Background(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	fa := &fakeAssistant{ingestDone: done}
	s := newTestServer(t, fa)

	w := do(s, multipartUpload(t, "/api/documents", "notes.txt", "Revenue grew."))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body: %s", w.Code, w.Body.String())
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background ingestion never ran")
	}
	if err := s.waitBackground(context.Background()); err != nil {
		t.Fatalf("waitBackground: %v", err)
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.uploaded) != 1 || fa.uploaded[0] != "notes.txt:Revenue grew." {
		t.Errorf("unexpected uploads: %v", fa.uploaded)
	}
	if len(fa.ingested) != 1 || fa.ingested[0] != "doc-1.txt" {
		t.Errorf("unexpected ingestions: %v", fa.ingested)
	}
}

func TestHandleUpload_Wait(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{}
	s := newTestServer(t, fa)
	w := do(s, multipartUpload(t, "/api/documents?wait=true", "notes.txt", "x"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body: %s", w.Code, w.Body.String())
	}
	var st agent.DocumentStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Document.ID != "doc-1.txt" {
		t.Errorf("document id: got %q", st.Document.ID)
	}
}

func TestHandleUpload_WaitIngestFails(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{ingestErr: fmt.Errorf("pipeline: %w", rag.ErrEmptyDocument)}
	s := newTestServer(t, fa)
	w := do(s, multipartUpload(t, "/api/documents?wait=1", "blank.txt", " "))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestHandleUpload_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("missing file field", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeAssistant{})
		w := do(s, jsonRequest(http.MethodPost, "/api/documents", `{}`))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
	t.Run("unsupported format", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeAssistant{uploadErr: fmt.Errorf("%w: extension %q", rag.ErrUnsupportedFormat, ".pptx")})
		w := do(s, multipartUpload(t, "/api/documents", "slides.pptx", "x"))
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", w.Code)
		}
	})
	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, &fakeAssistant{}, func(c *Config) { c.MaxUploadBytes = 64 })
		w := do(s, multipartUpload(t, "/api/documents", "big.txt", strings.Repeat("a", 4096)))
		if w.Code != http.StatusRequestEntityTooLarge && w.Code != http.StatusBadRequest {
			t.Fatalf("expected 413 or 400, got %d", w.Code)
		}
	})
}

func TestHandleWeb(t *testing.T) {
	t.Parallel()

	fa := &fakeAssistant{}
	s := newTestServer(t, fa)
	w := do(s, jsonRequest(http.MethodPost, "/api/documents/web?wait=true",
		`{"url":"https://example.com/post","text":"Already extracted text."}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body: %s", w.Code, w.Body.String())
	}
	if fa.webURL != "https://example.com/post" || fa.webText != "Already extracted text." {
		t.Errorf("web document not forwarded: url=%q text=%q", fa.webURL, fa.webText)
	}

	w = do(s, jsonRequest(http.MethodPost, "/api/documents/web", `{"url":"not a url"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid url: expected 400, got %d", w.Code)
	}
}

func TestHandleDocument(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeAssistant{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/api/documents/report.pdf", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"]["state"] != "ready" {
		t.Errorf("state: expected ready, got %v", body["status"]["state"])
	}

	w = do(s, httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	t.Parallel()
	fa := &fakeAssistant{}
	s := newTestServer(t, fa)

	w := do(s, httptest.NewRequest(http.MethodPost, "/api/documents/report.pdf/ingest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(fa.ingested) != 1 || fa.ingested[0] != "report.pdf" {
		t.Errorf("unexpected ingestions: %v", fa.ingested)
	}
}

func TestHandleHistory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{"default limit", "", http.StatusOK, defaultHistoryLimit},
		{"explicit limit", "?source=report.pdf&limit=5", http.StatusOK, 5},
		{"capped limit", "?limit=100000", http.StatusOK, maxHistoryLimit},
		{"bad limit", "?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fa := &fakeAssistant{history: []store.Exchange{{ID: 7, Question: "q", Answer: "a", Mode: "global"}}}
			s := newTestServer(t, fa)
			w := do(s, httptest.NewRequest(http.MethodGet, "/api/history"+tc.query, nil))
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, w.Code)
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			if fa.historyArg.n != tc.wantLimit {
				t.Errorf("limit: expected %d, got %d", tc.wantLimit, fa.historyArg.n)
			}
			var resp historyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Exchanges) != 1 || resp.Exchanges[0].ID != 7 {
				t.Errorf("unexpected exchanges: %+v", resp.Exchanges)
			}
		})
	}
}

func TestRoutes_AuthAppliedToAPIButNotProbes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeAssistant{}, func(c *Config) { c.APIKey = "secret" })

	if w := do(s, jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`)); w.Code != http.StatusUnauthorized {
		t.Errorf("/api/ask without token: expected 401, got %d", w.Code)
	}
	if w := do(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("/api/history without token: expected 401, got %d", w.Code)
	}
	if w := do(s, httptest.NewRequest(http.MethodGet, "/api/health", nil)); w.Code != http.StatusOK {
		t.Errorf("/api/health: expected 200, got %d", w.Code)
	}
	if w := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Code != http.StatusOK {
		t.Errorf("/metrics: expected 200, got %d", w.Code)
	}

	req := jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`)
	req.Header.Set("Authorization", "Bearer secret")
	if w := do(s, req); w.Code != http.StatusOK {
		t.Errorf("/api/ask with token: expected 200, got %d", w.Code)
	}
}

func TestRoutes_AskIsRateLimited(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &fakeAssistant{}, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	first := do(s, jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}
	second := do(s, jsonRequest(http.MethodPost, "/api/ask", `{"question":"q"}`))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
	// Reads are not limited.
	if w := do(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)); w.Code != http.StatusOK {
		t.Errorf("/api/history: expected 200, got %d", w.Code)
	}
}
