// Package synth turns retrieved chunks into an answer by prompting the
// generator. It refuses to call the generator when retrieval produced no
// usable context, replying with the insufficient-context sentinel instead.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/prompt"
	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultTimeout bounds a single generator call.
const DefaultTimeout = 120 * time.Second

// Config holds the dependencies of a Synthesizer.
type Config struct {
	// Generator produces the reply text. Required.
	Generator rag.Generator

	// Timeout bounds each generator call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Counter sizes prompts for the budget warning. Defaults to the
	// character heuristic.
	Counter budget.Counter

	// MaxPromptTokens is the size above which a warning is logged. Prompts
	// are never truncated. Zero disables the warning.
	MaxPromptTokens int
}

// Synthesizer builds prompts and calls the generator.
type Synthesizer struct {
	gen       rag.Generator
	provider  string
	timeout   time.Duration
	counter   budget.Counter
	maxTokens int
}

// New validates cfg and returns a Synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("synth: generator is required: %w", rag.ErrConfiguration)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("synth: negative timeout %s: %w", cfg.Timeout, rag.ErrConfiguration)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Counter == nil {
		cfg.Counter = budget.Heuristic{}
	}
	return &Synthesizer{
		gen:       cfg.Generator,
		provider:  rag.NameOf(cfg.Generator),
		timeout:   cfg.Timeout,
		counter:   cfg.Counter,
		maxTokens: cfg.MaxPromptTokens,
	}, nil
}

// Insufficient returns the sentinel answer used when no context is available.
func Insufficient(intent rag.Intent) rag.Answer {
	return rag.Answer{
		Text:         prompt.Sentinel,
		Grounding:    []rag.Chunk{},
		Intent:       intent,
		Mode:         rag.ModeGrounded,
		Insufficient: true,
	}
}

// Synthesize answers question from result. Blank chunks are discarded; if
// none remain the sentinel answer is returned without calling the generator.
func (s *Synthesizer) Synthesize(ctx context.Context, intent rag.Intent, question string, result rag.Result) (rag.Answer, error) {
	usable := make(rag.Result, 0, len(result))
	for _, h := range result {
		if !h.Blank() {
			usable = append(usable, h)
		}
	}
	if len(usable) == 0 {
		logging.FromContext(ctx).Info("synth: no usable context, skipping generator",
			slog.Int("retrieved", len(result)),
		)
		return Insufficient(intent), nil
	}

	p := prompt.Build(intent, prompt.Context(usable), question)
	if u := budget.Check(s.counter, p, s.maxTokens); u.Over() {
		logging.FromContext(ctx).Warn("synth: prompt exceeds token budget",
			slog.Int("tokens", u.Tokens),
			slog.Int("max_tokens", u.Max),
			slog.Int("chunks", len(usable)),
		)
	}

	reply, err := s.generate(ctx, p)
	if err != nil {
		return rag.Answer{}, err
	}

	if strings.TrimSpace(reply) == prompt.Sentinel {
		return Insufficient(intent), nil
	}
	return rag.Answer{
		Text:      reply,
		Grounding: usable.Chunks(),
		Intent:    intent,
		Mode:      rag.ModeGrounded,
	}, nil
}

// Global sends question to the generator unchanged, with no grounding.
func (s *Synthesizer) Global(ctx context.Context, question string) (rag.Answer, error) {
	reply, err := s.generate(ctx, question)
	if err != nil {
		return rag.Answer{}, err
	}
	return rag.Answer{
		Text:      reply,
		Grounding: []rag.Chunk{},
		Intent:    rag.IntentQuestionAnswering,
		Mode:      rag.ModeGlobal,
	}, nil
}

// generate calls the generator under the configured timeout and maps
// failures onto the provider error types.
func (s *Synthesizer) generate(ctx context.Context, p string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.gen.Generate(callCtx, p)
	if err == nil {
		logging.FromContext(ctx).Debug("synth: generator replied",
			slog.String("provider", s.provider),
			slog.Duration("elapsed", time.Since(start)),
			slog.Int("reply_chars", len(reply)),
		)
		return reply, nil
	}

	// The caller's own cancellation is not a provider failure.
	if ctx.Err() != nil {
		return "", fmt.Errorf("synth: %w", ctx.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || timedOut(err) {
		return "", &rag.GenerationTimeoutError{Provider: s.provider, Timeout: s.timeout}
	}
	return "", &rag.GenerationProviderError{Provider: s.provider, Err: err}
}

// timedOut reports deadlines raised by the provider's own transport, such as
// an http.Client timeout, rather than by the synthesizer's call context.
func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
