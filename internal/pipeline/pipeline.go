// Package pipeline wires the question-answering stages together: it resolves
// a document's vector index (reusing a cached or persisted one when possible),
// classifies the question, retrieves chunks, and asks the synthesizer for an
// answer. Without a document it answers in global mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/intent"
	"github.com/54b3r/docqa-go/internal/loader"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/synth"
)

// State is the lifecycle of one document's index.
type State int

const (
	// StateNoDocument means no usable index exists for the identifier.
	StateNoDocument State = iota
	// StateIndexing means a build is in flight.
	StateIndexing
	// StateReady means the index is in memory and can be queried.
	StateReady
	// StateIngestionFailed means the document could not be loaded or chunked.
	// A later Ingest or Answer for the same identifier tries again.
	StateIngestionFailed
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	case StateIngestionFailed:
		return "ingestion-failed"
	default:
		return "no-document"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a point-in-time view of one document's index.
type Status struct {
	// ID is the document identifier.
	ID string `json:"id"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Chunks is the number of indexed chunks once Ready.
	Chunks int `json:"chunks,omitempty"`

	// Error describes the last failure, if the state is the result of one.
	Error string `json:"error,omitempty"`

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Config holds everything the Orchestrator needs. Loader, Chunker, Embedder,
// Synthesizer and Store are required.
type Config struct {
	// Loader reads and extracts documents.
	Loader loader.Loader

	// Chunker splits extracted text.
	Chunker *chunker.Chunker

	// Embedder embeds chunks and questions.
	Embedder rag.Embedder

	// Synthesizer produces answers from retrieved chunks.
	Synthesizer *synth.Synthesizer

	// Store persists built indexes.
	Store index.Store

	// Strategy is the retrieval configuration applied to every query.
	// The zero value selects index.DefaultStrategy.
	Strategy index.Strategy

	// StaleCheck rebuilds persisted indexes whose content fingerprint no
	// longer matches the document.
	StaleCheck bool

	// MetricsRegistry receives the orchestrator metrics. A private registry
	// is used when nil.
	MetricsRegistry prometheus.Registerer

	// Logger is used when the request context carries none. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// Orchestrator answers questions about documents. It is safe for concurrent
// use; concurrent cold requests for the same document share one index build.
type Orchestrator struct {
	loader     loader.Loader
	chunker    *chunker.Chunker
	embedder   rag.Embedder
	synth      *synth.Synthesizer
	strategy   index.Strategy
	cache      *index.Cache
	staleCheck bool
	metrics    *pipelineMetrics
	logger     *slog.Logger

	mu     sync.RWMutex
	status map[string]Status
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Loader == nil:
		return nil, fmt.Errorf("pipeline: loader is required: %w", rag.ErrConfiguration)
	case cfg.Chunker == nil:
		return nil, fmt.Errorf("pipeline: chunker is required: %w", rag.ErrConfiguration)
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("pipeline: embedder is required: %w", rag.ErrConfiguration)
	case cfg.Synthesizer == nil:
		return nil, fmt.Errorf("pipeline: synthesizer is required: %w", rag.ErrConfiguration)
	case cfg.Store == nil:
		return nil, fmt.Errorf("pipeline: index store is required: %w", rag.ErrConfiguration)
	}

	if cfg.Strategy == (index.Strategy{}) {
		cfg.Strategy = index.DefaultStrategy()
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{
		loader:     cfg.Loader,
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		synth:      cfg.Synthesizer,
		strategy:   cfg.Strategy,
		cache:      index.NewCache(cfg.Store, cfg.StaleCheck, cfg.Logger),
		staleCheck: cfg.StaleCheck,
		metrics:    newPipelineMetrics(cfg.MetricsRegistry),
		logger:     cfg.Logger,
		status:     make(map[string]Status),
	}
	o.cache.OnSettled(o.settled)
	return o, nil
}

// ModeFor returns ModeGrounded when a document is present and ModeGlobal
// otherwise.
func ModeFor(ref *rag.DocumentRef) rag.Mode {
	if ref == nil {
		return rag.ModeGlobal
	}
	return rag.ModeGrounded
}

// Answer answers question. With a document reference the answer is grounded
// in that document's retrieved chunks; with nil the raw question goes to the
// generator.
func (o *Orchestrator) Answer(ctx context.Context, question string, ref *rag.DocumentRef) (rag.Answer, error) {
	start := time.Now()
	mode := ModeFor(ref)
	in := rag.IntentQuestionAnswering
	log := o.log(ctx).With(slog.String("mode", mode.String()))

	var (
		ans rag.Answer
		err error
	)
	if mode == rag.ModeGlobal {
		ans, err = o.synth.Global(ctx, question)
	} else {
		in = intent.Classify(question)
		log = log.With(slog.String("identifier", ref.Identifier()), slog.String("intent", in.String()))
		ans, err = o.grounded(ctx, log, in, question, *ref)
	}

	elapsed := time.Since(start)
	o.metrics.answerDurationSeconds.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
	o.metrics.answersTotal.WithLabelValues(mode.String(), in.String(), result(ans, err)).Inc()

	if err != nil {
		log.Error("answer failed", "error", err, "duration", elapsed)
		return rag.Answer{}, err
	}
	log.Info("answered",
		"grounding", len(ans.Grounding),
		"insufficient", ans.Insufficient,
		"duration", elapsed,
	)
	return ans, nil
}

func (o *Orchestrator) grounded(ctx context.Context, log *slog.Logger, in rag.Intent, question string, ref rag.DocumentRef) (rag.Answer, error) {
	idx, err := o.resolve(ctx, ref)
	if err != nil {
		return rag.Answer{}, err
	}

	hits, err := idx.Query(ctx, o.embedder, question, o.strategy)
	if err != nil {
		return rag.Answer{}, fmt.Errorf("pipeline: retrieve from %s: %w", idx.ID, err)
	}
	log.Debug("retrieved chunks", "strategy", string(o.strategy.Kind), "hits", len(hits))

	return o.synth.Synthesize(ctx, in, question, hits)
}

// Ingest makes sure ref has a ready index, building it if needed.
func (o *Orchestrator) Ingest(ctx context.Context, ref rag.DocumentRef) error {
	_, err := o.resolve(ctx, ref)
	return err
}

// State returns the lifecycle state of the index for id.
func (o *Orchestrator) State(id string) State {
	return o.Status(id).State
}

// Status returns the full status of the index for id.
func (o *Orchestrator) Status(id string) Status {
	o.mu.RLock()
	st, ok := o.status[id]
	o.mu.RUnlock()
	if ok {
		return st
	}
	return Status{ID: id, State: StateNoDocument}
}

// resolve returns the index for ref from memory, the store, or a fresh build.
// The source is only read when a build needs it or when stale checking has
// to fingerprint it; an index that already exists stays usable after its
// source disappears.
func (o *Orchestrator) resolve(ctx context.Context, ref rag.DocumentRef) (*index.Index, error) {
	id := ref.Identifier()

	fp, build := "", o.readAndBuild(ref)
	if o.staleCheck {
		raw, err := o.loader.Read(ctx, ref)
		if err == nil {
			fp = index.Fingerprint(raw, o.chunker.Size(), o.chunker.Overlap())
			build = func(bctx context.Context) (*index.Index, error) {
				return o.build(bctx, ref, fp, raw)
			}
		} else {
			o.log(ctx).Warn("source unreadable, serving existing index if any",
				slog.String("identifier", id),
				slog.Any("error", err),
			)
			build = func(context.Context) (*index.Index, error) { return nil, err }
		}
	}

	idx, outcome, err := o.cache.Resolve(ctx, id, fp, build)
	if err != nil {
		o.metrics.indexResolutionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	o.metrics.indexResolutionsTotal.WithLabelValues(outcome.String()).Inc()
	if outcome == index.OutcomeMemory {
		o.setStatus(id, StateReady, idx.Len(), nil)
	}
	return idx, nil
}

// readAndBuild returns a build func that reads the source itself.
func (o *Orchestrator) readAndBuild(ref rag.DocumentRef) index.BuildFunc {
	return func(ctx context.Context) (*index.Index, error) {
		raw, err := o.loader.Read(ctx, ref)
		if err != nil {
			return nil, err
		}
		return o.build(ctx, ref, index.Fingerprint(raw, o.chunker.Size(), o.chunker.Overlap()), raw)
	}
}

// build extracts, chunks and embeds ref. It runs at most once at a time per
// identifier and outlives the request that started it.
func (o *Orchestrator) build(ctx context.Context, ref rag.DocumentRef, fp string, raw []byte) (*index.Index, error) {
	id := ref.Identifier()
	log := o.log(ctx).With(slog.String("identifier", id))
	o.setStatus(id, StateIndexing, 0, nil)
	start := time.Now()

	text, err := o.loader.Extract(ctx, ref, raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pipeline: %s: %w", id, rag.ErrEmptyDocument)
	}

	chunks := o.chunker.Split(id, text)
	idx, err := index.Build(ctx, o.embedder, index.BuildParams{
		ID:           id,
		Fingerprint:  fp,
		ChunkSize:    o.chunker.Size(),
		ChunkOverlap: o.chunker.Overlap(),
	}, chunks)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	o.metrics.indexBuildSeconds.Observe(elapsed.Seconds())
	o.metrics.indexChunks.Observe(float64(idx.Len()))
	log.Info("document indexed",
		"source", ref.Source(),
		"chunks", idx.Len(),
		"duration", elapsed,
	)
	return idx, nil
}

// settled records the outcome of a load-or-build flight.
func (o *Orchestrator) settled(id string, idx *index.Index, err error) {
	switch {
	case err == nil:
		o.setStatus(id, StateReady, idx.Len(), nil)
	case ingestionFailure(err):
		o.setStatus(id, StateIngestionFailed, 0, err)
	default:
		o.setStatus(id, StateNoDocument, 0, err)
	}
}

func (o *Orchestrator) setStatus(id string, s State, chunks int, err error) {
	st := Status{ID: id, State: s, Chunks: chunks, UpdatedAt: time.Now().UTC()}
	if err != nil {
		st.Error = err.Error()
	}
	o.mu.Lock()
	o.status[id] = st
	o.mu.Unlock()
}

func (o *Orchestrator) log(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return o.logger
}

// ingestionFailure reports whether err means the document itself is unusable,
// as opposed to a provider or storage failure.
func ingestionFailure(err error) bool {
	return errors.Is(err, rag.ErrUnsupportedFormat) ||
		errors.Is(err, rag.ErrDocumentLoad) ||
		errors.Is(err, rag.ErrEmptyDocument)
}

func result(ans rag.Answer, err error) string {
	switch {
	case err != nil:
		return "error"
	case ans.Insufficient:
		return "insufficient"
	default:
		return "answered"
	}
}
