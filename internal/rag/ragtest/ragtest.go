// Package ragtest provides deterministic in-memory embedders and generators
// for tests.
package ragtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

// Dimension is the vector length produced by Embedder.
const Dimension = 64

// Embedder hashes each lower-cased word into one of Dimension buckets. Texts
// sharing words get similar vectors, which is enough to make retrieval
// deterministic in tests.
type Embedder struct {
	// Delay is slept before every call, to widen race windows in tests.
	Delay time.Duration
	// Err, when set, is returned by every call.
	Err error

	calls atomic.Int64
	texts atomic.Int64
}

// Name implements rag.Named.
func (e *Embedder) Name() string { return "ragtest" }

// Embed implements rag.Embedder.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// Calls returns how many times Embed was invoked.
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// Texts returns the total number of texts embedded.
func (e *Embedder) Texts() int { return int(e.texts.Load()) }

// Vector returns the embedding Embedder produces for text.
func Vector(text string) []float32 {
	v := make([]float32, Dimension)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dimension]++
	}
	return v
}

// Generator records prompts and replies with a fixed or computed answer.
type Generator struct {
	// Reply is returned when Fn is nil.
	Reply string
	// Fn, when set, computes the reply from the prompt.
	Fn func(prompt string) (string, error)
	// Delay is slept before replying; the call honours ctx while sleeping.
	Delay time.Duration

	mu      sync.Mutex
	prompts []string
}

// Name implements rag.Named.
func (g *Generator) Name() string { return "ragtest" }

// Generate implements rag.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.Fn != nil {
		return g.Fn(prompt)
	}
	return g.Reply, nil
}

// Prompts returns a copy of every prompt received, in call order.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Calls returns how many times Generate was invoked.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
