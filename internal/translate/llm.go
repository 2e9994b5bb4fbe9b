package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

const llmTemplate = `Translate the text below from {source} to {target}.
Keep the Markdown formatting, names, numbers, and dates unchanged.
Reply with the translation only, without notes or quotation marks.

{text}`

// LLM translates by prompting the configured chat model.
type LLM struct {
	gen rag.Generator
}

// NewLLM returns an LLM translator backed by gen.
func NewLLM(gen rag.Generator) *LLM {
	return &LLM{gen: gen}
}

// Translate implements Translator.
func (l *LLM) Translate(ctx context.Context, text, source, target string) (string, error) {
	src := "the detected language"
	if source != Auto {
		src = Name(source)
	}
	p := strings.NewReplacer("{source}", src, "{target}", Name(target), "{text}", text).Replace(llmTemplate)

	out, err := l.gen.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("llm translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}
