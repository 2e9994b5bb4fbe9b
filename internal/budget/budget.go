// Package budget estimates prompt sizes in tokens. Generators run on
// different tokenizers, so counts are approximate: a tiktoken encoding is used
// when it can be loaded, and a character heuristic (1 token ≈ 4 characters)
// otherwise.
package budget

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// charsPerToken is the character-to-token ratio used by Estimate.
	charsPerToken = 4

	// DefaultMaxPromptTokens is the default prompt budget. It fits 8k-context
	// models while leaving room for the reply.
	DefaultMaxPromptTokens = 6000

	// DefaultEncoding is the tiktoken encoding used by NewTiktoken when none
	// is given.
	DefaultEncoding = "cl100k_base"
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Counter counts tokens in a piece of text.
type Counter interface {
	Count(s string) int
}

// Heuristic is a Counter backed by Estimate.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(s string) int { return Estimate(s) }

// Tiktoken is a Counter backed by a tiktoken BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. The first load may fetch the BPE
// ranks over the network; callers should fall back to Heuristic on error.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("budget: load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

// Usage is the outcome of checking a prompt against a budget.
type Usage struct {
	// Tokens is the counted size of the prompt.
	Tokens int
	// Max is the budget the prompt was checked against.
	Max int
}

// Over reports whether the prompt exceeds the budget. A non-positive Max
// disables the check.
func (u Usage) Over() bool { return u.Max > 0 && u.Tokens > u.Max }

// Check counts prompt with c and compares it against maxTokens.
func Check(c Counter, prompt string, maxTokens int) Usage {
	if c == nil {
		c = Heuristic{}
	}
	return Usage{Tokens: c.Count(prompt), Max: maxTokens}
}
