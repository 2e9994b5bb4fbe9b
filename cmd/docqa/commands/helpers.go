package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/loader"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/synth"
	"github.com/54b3r/docqa-go/internal/tracing"
	"github.com/54b3r/docqa-go/internal/translate"
	"github.com/54b3r/docqa-go/internal/version"
)

// app is the fully wired assistant shared by every command.
type app struct {
	settings  config.Settings
	provider  *provider.Config
	assistant *agent.Assistant
	pingers   []server.Pinger

	closers []func() error
	flush   func()
}

// appOptions tunes buildApp for a particular command.
type appOptions struct {
	// metrics receives the pipeline metrics. Nil keeps them private.
	metrics prometheus.Registerer
	// ephemeral keeps the registry and history in memory; one-shot commands
	// do not need them to outlive the process.
	ephemeral bool
}

// buildApp resolves settings and constructs every component behind the
// assistant. Call Close on the result when done.
func buildApp(ctx context.Context, log *slog.Logger, opts appOptions) (*app, error) {
	settings, err := config.Resolve()
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings, flush: func() {}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	tc := tracing.ConfigFromEnv()
	flush, enabled := tracing.Install(tc)
	a.flush = flush
	if enabled {
		log.Info("langfuse tracing enabled")
	} else {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
	}

	a.provider = provider.ConfigFromEnv()
	if err := a.provider.Validate(); err != nil {
		return nil, err
	}
	gen, err := provider.NewGeneratorFromConfig(ctx, a.provider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(a.provider.Backend)),
		slog.String("model", a.provider.ModelName()),
	)
	if hc := server.NewLLMPinger(a.provider); hc != nil {
		a.pingers = append(a.pingers, hc)
	}

	embCfg := embedder.ConfigFromEnv()
	if err := embedder.Preflight(embCfg, log); err != nil {
		return nil, err
	}
	emb, err := embedder.New(ctx, embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	idxStore, err := a.openIndexStore(ctx, log)
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var counter budget.Counter = budget.Heuristic{}
	if tk, err := budget.NewTiktoken(settings.TokenEncoding); err != nil {
		log.Warn("token counter: falling back to character heuristic",
			slog.String("encoding", settings.TokenEncoding),
			slog.Any("error", err),
		)
	} else {
		counter = tk
	}

	syn, err := synth.New(synth.Config{
		Generator:       gen,
		Timeout:         settings.GenerationTimeout,
		Counter:         counter,
		MaxPromptTokens: settings.MaxPromptTokens,
	})
	if err != nil {
		return nil, err
	}

	strategy, err := strategyFrom(settings)
	if err != nil {
		return nil, err
	}

	orch, err := pipeline.New(pipeline.Config{
		Loader:          loader.DefaultWithLimit(settings.DocumentMaxBytes),
		Chunker:         chk,
		Embedder:        emb,
		Synthesizer:     syn,
		Store:           idxStore,
		Strategy:        strategy,
		StaleCheck:      settings.StaleCheck,
		MetricsRegistry: opts.metrics,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	backend, err := translate.NewBackend(ctx, translate.Config{
		Backend:      translate.Backend(settings.TranslateProvider),
		GoogleAPIKey: settings.GoogleTranslateAPIKey,
	}, gen)
	if err != nil {
		return nil, err
	}

	docs, history, err := a.openStores(log, opts.ephemeral)
	if err != nil {
		return nil, err
	}

	cfg := agent.Config{
		Pipeline:   orch,
		Translator: translate.NewService(backend, log),
		Documents:  docs,
		History:    history,
		Fetcher: loader.NewFetcher(loader.WebConfig{
			Timeout:   settings.WebTimeout,
			UserAgent: "docqa/" + version.Version,
			MaxBytes:  settings.DocumentMaxBytes,
		}),
		UploadDir: settings.UploadDir,
		Logger:    log,
	}
	a.assistant, err = agent.New(cfg)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// openIndexStore opens the index store named by INDEX_BACKEND.
func (a *app) openIndexStore(ctx context.Context, log *slog.Logger) (index.Store, error) {
	s := a.settings
	var (
		st  index.Store
		err error
	)
	switch index.Backend(s.IndexBackend) {
	case index.BackendFile:
		st, err = index.NewFileStore(s.IndexDir)
	case index.BackendSQLite:
		st, err = index.OpenSQLite(s.IndexSQLitePath)
	case index.BackendQdrant:
		var q *index.QdrantStore
		q, err = index.NewQdrantStore(&index.QdrantConfig{
			Host:   s.QdrantHost,
			Port:   s.QdrantPort,
			Prefix: s.QdrantPrefix,
			APIKey: s.QdrantAPIKey,
			UseTLS: s.QdrantTLS,
		})
		if err == nil {
			a.pingers = append(a.pingers, server.NewQdrantPinger(q.Client()))
			st = q
		}
	case index.BackendPgvector:
		var pg *index.PgvectorStore
		pg, err = index.NewPgvectorStore(ctx, s.PostgresDSN)
		if err == nil {
			a.pingers = append(a.pingers, server.NewStorePinger("postgres", pg))
			st = pg
		}
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (want file, sqlite, qdrant or pgvector): %w", s.IndexBackend, rag.ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s index store: %w", s.IndexBackend, err)
	}
	a.closers = append(a.closers, st.Close)
	log.Info("index store ready", slog.String("backend", s.IndexBackend))
	return st, nil
}

// openStores opens the SQLite database behind the document registry and the
// exchange log. With DOCQA_HISTORY_DB=disabled, or for ephemeral runs, the
// registry lives in memory and the exchange log is off.
func (a *app) openStores(log *slog.Logger, ephemeral bool) (store.DocumentRegistry, store.ExchangeLog, error) {
	path := a.settings.HistoryDB
	persistent := !ephemeral && path != config.HistoryDisabled
	if !persistent {
		path = ":memory:"
	}

	st, err := store.Open(path)
	if err != nil && persistent {
		log.Warn("history: failed to open store, falling back to memory",
			slog.String("path", path),
			slog.Any("error", err),
		)
		persistent = false
		st, err = store.Open(":memory:")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document registry: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	if !persistent {
		log.Debug("history: disabled")
		return st, nil, nil
	}
	log.Info("history: store opened", slog.String("path", path))
	return st, st, nil
}

// Close releases every resource in reverse order of acquisition and flushes
// pending traces.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	a.flush()
	if err := errors.Join(errs...); err != nil {
		slog.Default().Warn("close: releasing resources", slog.Any("error", err))
	}
}

// strategyFrom builds the retrieval strategy from settings.
func strategyFrom(s config.Settings) (index.Strategy, error) {
	kind, err := index.ParseKind(s.RetrievalStrategy)
	if err != nil {
		return index.Strategy{}, err
	}
	st := index.Strategy{
		Kind:           kind,
		K:              s.RetrievalK,
		FetchK:         s.RetrievalFetchK,
		ScoreThreshold: s.ScoreThreshold,
		Lambda:         s.MMRLambda,
	}
	return st, st.Validate()
}
