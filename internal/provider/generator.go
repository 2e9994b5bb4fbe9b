package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

// errEmptyReply is returned when the model answers with no content.
var errEmptyReply = errors.New("model returned an empty reply")

// Generator adapts an eino chat model to rag.Generator. Each prompt is sent
// as a single user message with no history.
type Generator struct {
	// model is the underlying chat model.
	model model.BaseChatModel
	// name labels errors and metrics, e.g. "ollama/gemma:2b".
	name string
}

// Ensure Generator implements rag.Generator and rag.Named.
var (
	_ rag.Generator = (*Generator)(nil)
	_ rag.Named     = (*Generator)(nil)
)

// NewGenerator wraps m. name identifies the backend in errors.
func NewGenerator(m model.BaseChatModel, name string) *Generator {
	return &Generator{model: m, name: name}
}

// NewGeneratorFromConfig builds the chat model for cfg and wraps it.
func NewGeneratorFromConfig(ctx context.Context, cfg *Config) (*Generator, error) {
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(m, string(cfg.Backend)+"/"+cfg.ModelName()), nil
}

// Name implements rag.Named.
func (g *Generator) Name() string { return g.name }

// Generate implements rag.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("provider: %s generate: %w", g.name, err)
	}
	if msg == nil || msg.Content == "" {
		return "", fmt.Errorf("provider: %s: %w", g.name, errEmptyReply)
	}
	return msg.Content, nil
}
