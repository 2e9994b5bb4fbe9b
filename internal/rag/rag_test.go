package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want Format
		err  bool
	}{
		{"report.pdf", FormatPDF, false},
		{"/tmp/REPORT.PDF", FormatPDF, false},
		{"notes.txt", FormatTXT, false},
		{"README.md", FormatTXT, false},
		{"table.csv", FormatCSV, false},
		{"letter.docx", FormatDOCX, false},
		{"legacy.doc", "", true},
		{"slides.pptx", "", true},
		{"no-extension", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			got, err := FormatForPath(tc.path)
			if tc.err {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDocumentRef_Identifier(t *testing.T) {
	t.Parallel()

	file, err := FileRef("/data/uploads/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Identifier())
	assert.Equal(t, "/data/uploads/report.pdf", file.Source())
	assert.False(t, file.IsWeb())

	a := WebRef("https://example.com/a", "same text")
	b := WebRef("https://example.com/b", "same text")
	c := WebRef("", "other text")
	assert.True(t, a.IsWeb())
	assert.Equal(t, a.Identifier(), b.Identifier(), "identifier depends on text only")
	assert.NotEqual(t, a.Identifier(), c.Identifier())
	assert.True(t, strings.HasPrefix(a.Identifier(), "web-"))
	assert.Len(t, a.Identifier(), len("web-")+16)

	assert.Equal(t, "https://example.com/a", a.Source())
	assert.Equal(t, c.Identifier(), c.Source())
}

func TestDocumentRef_WebTextNotSerialised(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(WebRef("https://example.com", "secret page body"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret page body")
	assert.Contains(t, string(b), `"format":"web"`)
}

func TestModeAndIntent_Text(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Answer{Mode: ModeGlobal, Intent: IntentSummary})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"global"`)
	assert.Contains(t, string(b), `"intent":"summary"`)
	assert.Equal(t, "grounded", ModeGrounded.String())
	assert.Equal(t, "question-answering", IntentQuestionAnswering.String())
}

func TestErrors_WrapAndMatch(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	gen := fmt.Errorf("synth: %w", &GenerationProviderError{Provider: "ollama/gemma:2b", Err: cause})
	emb := fmt.Errorf("index: %w", &EmbeddingProviderError{Provider: "ollama/nomic-embed-text", Err: cause})
	timeout := fmt.Errorf("synth: %w", &GenerationTimeoutError{Provider: "openai/gpt-4o", Timeout: 2 * time.Minute})

	assert.ErrorIs(t, gen, cause)
	assert.ErrorIs(t, emb, cause)

	var ge *GenerationProviderError
	require.ErrorAs(t, gen, &ge)
	assert.Equal(t, "ollama/gemma:2b", ge.Provider)
	assert.Contains(t, timeout.Error(), "2m0s")

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"generation provider", gen, true},
		{"embedding provider", emb, true},
		{"timeout", timeout, true},
		{"configuration", fmt.Errorf("config: %w", ErrConfiguration), false},
		{"empty document", ErrEmptyDocument, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Retryable(tc.err), tc.name)
	}
}

type namedThing struct{}

func (namedThing) Name() string { return "ollama/gemma:2b" }

func TestNameOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ollama/gemma:2b", NameOf(namedThing{}))
	assert.Equal(t, "unknown", NameOf(struct{}{}))
}
