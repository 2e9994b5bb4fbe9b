// Package agent is the user-facing side of docqa. It accepts a question in
// any supported language, translates it to English, has the pipeline answer
// it against a registered document (or globally when none is given),
// translates the reply back, and records the exchange. The HTTP server, the
// CLI and the MCP tool all go through an Assistant.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/loader"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/translate"
)

var (
	// ErrUnknownDocument is returned when a question names a document id
	// that was never registered.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Answerer is the part of the pipeline the assistant drives.
// *pipeline.Orchestrator satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string, ref *rag.DocumentRef) (rag.Answer, error)
	Ingest(ctx context.Context, ref rag.DocumentRef) error
	Status(id string) pipeline.Status
}

// Config holds the dependencies of an Assistant.
type Config struct {
	// Pipeline answers questions. Required.
	Pipeline Answerer

	// Translator converts questions and replies. Defaults to a passthrough
	// service that returns text unchanged.
	Translator *translate.Service

	// Documents maps document ids to their sources. Required.
	Documents store.DocumentRegistry

	// History records answered exchanges. Nil disables the exchange log.
	History store.ExchangeLog

	// Fetcher downloads web pages for AddWeb. Defaults to a Fetcher with
	// default settings.
	Fetcher *loader.Fetcher

	// UploadDir is where SaveUpload writes files. Required for uploads.
	UploadDir string

	// Logger is used when the request context carries none.
	Logger *slog.Logger
}

// Assistant answers multilingual questions about registered documents.
// It is safe for concurrent use.
type Assistant struct {
	pipeline   Answerer
	translator *translate.Service
	documents  store.DocumentRegistry
	history    store.ExchangeLog
	fetcher    *loader.Fetcher
	uploadDir  string
	logger     *slog.Logger
}

// New validates cfg and returns an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("agent: pipeline is required: %w", rag.ErrConfiguration)
	}
	if cfg.Documents == nil {
		return nil, fmt.Errorf("agent: document registry is required: %w", rag.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Translator == nil {
		cfg.Translator = translate.NewService(translate.Passthrough{}, cfg.Logger)
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = loader.NewFetcher(loader.WebConfig{})
	}
	return &Assistant{
		pipeline:   cfg.Pipeline,
		translator: cfg.Translator,
		documents:  cfg.Documents,
		history:    cfg.History,
		fetcher:    cfg.Fetcher,
		uploadDir:  cfg.UploadDir,
		logger:     cfg.Logger,
	}, nil
}

// Question is one user question.
type Question struct {
	// Text is the question as the user wrote it.
	Text string

	// Lang is the language of Text and of the expected reply. Empty means
	// English; "auto" lets the translator detect it and replies in English.
	Lang string

	// DocumentID selects a registered document. Empty asks in global mode.
	DocumentID string
}

// Reply is the answer to a Question.
type Reply struct {
	// Answer is the reply in the question's language.
	Answer string `json:"answer"`

	// Lang is the language of Answer.
	Lang string `json:"lang"`

	// Mode is "grounded" or "global".
	Mode rag.Mode `json:"mode"`

	// Intent is the classified intent of the question.
	Intent rag.Intent `json:"intent"`

	// Insufficient is true when the document did not contain the answer.
	Insufficient bool `json:"insufficient"`

	// Grounding lists the chunks the answer was based on, untranslated.
	Grounding []rag.Chunk `json:"grounding"`

	// DocumentID echoes the document the question was asked about.
	DocumentID string `json:"document_id,omitempty"`

	// ExchangeID is the exchange log entry, when the log is enabled.
	ExchangeID int64 `json:"exchange_id,omitempty"`
}

// Ask answers q. Translation failures on the way in abort the request; the
// exchange log is best effort and never fails it.
func (a *Assistant) Ask(ctx context.Context, q Question) (Reply, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Reply{}, ErrEmptyQuestion
	}
	lang, err := translate.ParseLang(q.Lang)
	if err != nil {
		return Reply{}, err
	}
	replyLang := lang
	if lang == translate.Auto {
		replyLang = translate.English
	}
	log := a.log(ctx).With(slog.String("lang", lang))

	var ref *rag.DocumentRef
	if q.DocumentID != "" {
		doc, err := a.Document(ctx, q.DocumentID)
		if err != nil {
			return Reply{}, err
		}
		r := doc.Ref()
		ref = &r
	}

	english, err := a.translator.ToEnglish(ctx, q.Text, lang)
	if err != nil {
		return Reply{}, err
	}
	if english != q.Text {
		log.Debug("question translated", "chars", len(english))
	}

	ans, err := a.pipeline.Answer(ctx, english, ref)
	if err != nil {
		return Reply{}, err
	}

	text, err := a.translator.FromEnglish(ctx, ans.Text, replyLang)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{
		Answer:       text,
		Lang:         replyLang,
		Mode:         ans.Mode,
		Intent:       ans.Intent,
		Insufficient: ans.Insufficient,
		Grounding:    ans.Grounding,
		DocumentID:   q.DocumentID,
	}
	if reply.Grounding == nil {
		reply.Grounding = []rag.Chunk{}
	}
	reply.ExchangeID = a.record(ctx, log, q, reply)
	return reply, nil
}

// record appends the exchange to the log. Failures are logged and dropped.
func (a *Assistant) record(ctx context.Context, log *slog.Logger, q Question, r Reply) int64 {
	if a.history == nil {
		return 0
	}
	id, err := a.history.Record(ctx, store.Exchange{
		Source:       q.DocumentID,
		Mode:         r.Mode.String(),
		Intent:       r.Intent.String(),
		Lang:         r.Lang,
		Question:     q.Text,
		Answer:       r.Answer,
		Insufficient: r.Insufficient,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		log.Warn("history: failed to record exchange", slog.Any("error", err))
		return 0
	}
	return id
}

// History lists up to n recorded exchanges for documentID, newest first.
// An empty documentID lists all of them.
func (a *Assistant) History(ctx context.Context, documentID string, n int) ([]store.Exchange, error) {
	if a.history == nil {
		return []store.Exchange{}, nil
	}
	out, err := a.history.List(ctx, documentID, n)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.Exchange{}
	}
	return out, nil
}

func (a *Assistant) log(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return a.logger
}
