package synth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/prompt"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/rag/ragtest"
)

func hits(texts ...string) rag.Result {
	out := make(rag.Result, len(texts))
	for i, t := range texts {
		out[i] = rag.Hit{Chunk: rag.Chunk{Source: "doc.txt", Ordinal: i, Text: t}, Score: 0.9}
	}
	return out
}

func newSynth(t *testing.T, gen rag.Generator, timeout time.Duration) *Synthesizer {
	t.Helper()
	s, err := New(Config{Generator: gen, Timeout: timeout})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresGenerator(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = New(Config{Generator: &ragtest.Generator{}, Timeout: -time.Second})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestSynthesize_BlankChunksSkipGenerator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result rag.Result
	}{
		{"empty result", nil},
		{"whitespace only", hits("   ", "\n\t", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &ragtest.Generator{Reply: "should not be used"}
			s := newSynth(t, gen, time.Second)

			ans, err := s.Synthesize(context.Background(), rag.IntentQuestionAnswering, "What is X?", tt.result)
			require.NoError(t, err)
			assert.Equal(t, "The context does not provide this information.", ans.Text)
			assert.True(t, ans.Insufficient)
			assert.Empty(t, ans.Grounding)
			assert.Zero(t, gen.Calls(), "generator must not be invoked")
		})
	}
}

func TestSynthesize_GroundsOnUsableChunks(t *testing.T) {
	t.Parallel()

	gen := &ragtest.Generator{Reply: "Revenue was **42 million**."}
	s := newSynth(t, gen, time.Second)

	ans, err := s.Synthesize(context.Background(), rag.IntentQuestionAnswering, "What was revenue?",
		hits("Revenue was 42 million.", "  ", "Costs rose."))
	require.NoError(t, err)

	assert.Equal(t, "Revenue was **42 million**.", ans.Text)
	assert.False(t, ans.Insufficient)
	assert.Equal(t, rag.ModeGrounded, ans.Mode)
	require.Len(t, ans.Grounding, 2)
	assert.Equal(t, 0, ans.Grounding[0].Ordinal)
	assert.Equal(t, 2, ans.Grounding[1].Ordinal)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Revenue was 42 million.\n\nCosts rose.")
	assert.Contains(t, prompts[0], "What was revenue?")
}

func TestSynthesize_SentinelReplyIsInsufficient(t *testing.T) {
	t.Parallel()

	gen := &ragtest.Generator{Reply: "  " + prompt.Sentinel + "\n"}
	s := newSynth(t, gen, time.Second)

	ans, err := s.Synthesize(context.Background(), rag.IntentQuestionAnswering, "Who is the CEO?", hits("Revenue was 42 million."))
	require.NoError(t, err)
	assert.True(t, ans.Insufficient)
	assert.Equal(t, prompt.Sentinel, ans.Text)
	assert.Empty(t, ans.Grounding)
}

func TestSynthesize_SummaryPrompt(t *testing.T) {
	t.Parallel()

	gen := &ragtest.Generator{Reply: "## Overview\n- point"}
	s := newSynth(t, gen, time.Second)

	ans, err := s.Synthesize(context.Background(), rag.IntentSummary, "Give me a summary", hits("Body text."))
	require.NoError(t, err)
	assert.Equal(t, rag.IntentSummary, ans.Intent)
	assert.NotContains(t, gen.Prompts()[0], "Give me a summary")
}

func TestSynthesize_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("401 unauthorized")
	gen := &ragtest.Generator{Fn: func(string) (string, error) { return "", boom }}
	s := newSynth(t, gen, time.Second)

	_, err := s.Synthesize(context.Background(), rag.IntentQuestionAnswering, "q", hits("ctx"))
	var pe *rag.GenerationProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ragtest", pe.Provider)
	assert.ErrorIs(t, err, boom)
	assert.True(t, rag.Retryable(err))
}

func TestSynthesize_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	gen := &ragtest.Generator{Reply: "late", Delay: time.Second}
	s := newSynth(t, gen, 20*time.Millisecond)

	_, err := s.Synthesize(context.Background(), rag.IntentQuestionAnswering, "q", hits("ctx"))
	var te *rag.GenerationTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.True(t, te.Retryable())
}

func TestSynthesize_TransportTimeout(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"deadline":       fmt.Errorf("ollama: chat: %w", context.DeadlineExceeded),
		"client timeout": &url.Error{Op: "Post", URL: "http://localhost:11434/api/chat", Err: netTimeout{}},
	}
	for name, cause := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			gen := &ragtest.Generator{Fn: func(string) (string, error) { return "", cause }}
			s := newSynth(t, gen, time.Minute)

			_, err := s.Synthesize(context.Background(), rag.IntentQuestionAnswering, "q", hits("ctx"))
			var te *rag.GenerationTimeoutError
			require.ErrorAs(t, err, &te)
			assert.True(t, rag.Retryable(err))
		})
	}
}

type netTimeout struct{}

func (netTimeout) Error() string { return "Client.Timeout exceeded while awaiting headers" }
func (netTimeout) Timeout() bool { return true }
func (netTimeout) Temporary() bool { return true }

func TestSynthesize_CallerCancellation(t *testing.T) {
	t.Parallel()

	gen := &ragtest.Generator{Reply: "late", Delay: time.Second}
	s := newSynth(t, gen, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Synthesize(ctx, rag.IntentQuestionAnswering, "q", hits("ctx"))
	require.ErrorIs(t, err, context.Canceled)

	var te *rag.GenerationTimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestGlobal_SendsRawQuestion(t *testing.T) {
	t.Parallel()

	gen := &ragtest.Generator{Reply: "Paris."}
	s := newSynth(t, gen, time.Second)

	ans, err := s.Global(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", ans.Text)
	assert.Equal(t, rag.ModeGlobal, ans.Mode)
	assert.Empty(t, ans.Grounding)
	assert.Equal(t, []string{"What is the capital of France?"}, gen.Prompts())
}
