package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full grounded answer including translation.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the graceful shutdown, including background
	// ingestion started by uploads.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MaxUploadBytes caps the multipart body of POST /api/documents.
	// Defaults to 50 MiB.
	MaxUploadBytes int64
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Assistant is everything the handlers need from the session layer.
// *agent.Assistant satisfies it; tests inject a fake.
type Assistant interface {
	Ask(ctx context.Context, q agent.Question) (agent.Reply, error)
	SaveUpload(ctx context.Context, name string, r io.Reader) (store.Document, error)
	AddWeb(ctx context.Context, url, text string) (store.Document, error)
	Ingest(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (agent.DocumentStatus, error)
	History(ctx context.Context, documentID string, n int) ([]store.Exchange, error)
}

// Server is the HTTP front end of docqa.
type Server struct {
	// assistant answers questions and manages documents.
	assistant Assistant
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, exposed for tests via Handler.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// validate checks decoded request bodies.
	validate *validator.Validate
	// background tracks ingestion started by uploads so shutdown can wait.
	background sync.WaitGroup
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's question in any supported language.
	Question string `json:"question" validate:"required,max=4000"`
	// Lang is the BCP 47 code of the question and the reply. Empty means
	// English; "auto" detects the question language and replies in English.
	Lang string `json:"lang" validate:"omitempty,max=35"`
	// Source is the document id to ground the answer in. Empty asks globally.
	Source string `json:"source" validate:"omitempty,max=255"`
}

// webRequest is the JSON body for POST /api/documents/web. One of URL or
// Text must be set; Text wins when both are.
type webRequest struct {
	// URL is fetched with a single GET when Text is empty.
	URL string `json:"url" validate:"omitempty,url"`
	// Text is page text the caller already extracted.
	Text string `json:"text"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Source echoes the filter; empty lists every document.
	Source string `json:"source,omitempty"`
	// Exchanges is newest first.
	Exchanges []store.Exchange `json:"exchanges"`
}

// errorResponse is the JSON body of every non-2xx reply from /api/*.
type errorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`
	// Fields maps request fields to the rule they failed. Only set for
	// validation failures.
	Fields map[string]string `json:"fields,omitempty"`
}
