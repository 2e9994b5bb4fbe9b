// Package rag defines the shared vocabulary of the question-answering core:
// document references, chunks, retrieval results, intents, answers, and the
// two external capabilities the core depends on (embedding and generation).
// Concrete implementations live in sibling packages so the core never depends
// on a specific backend.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags the kind of content a DocumentRef points at.
type Format string

const (
	// FormatPDF is a PDF file.
	FormatPDF Format = "pdf"
	// FormatTXT is a plain text file.
	FormatTXT Format = "txt"
	// FormatCSV is a comma-separated values file.
	FormatCSV Format = "csv"
	// FormatDOCX is a Word (Office Open XML) document. Legacy binary .doc
	// files are deliberately unsupported and fail with ErrUnsupportedFormat.
	FormatDOCX Format = "docx"
	// FormatWeb is text extracted from a web page.
	FormatWeb Format = "web"
)

// extFormats maps lower-cased file extensions to their format tag.
var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".txt":  FormatTXT,
	".text": FormatTXT,
	".md":   FormatTXT,
	".csv":  FormatCSV,
	".docx": FormatDOCX,
}

// FormatForPath returns the format tag for path based on its extension.
// Unknown extensions fail with ErrUnsupportedFormat.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := extFormats[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// DocumentRef identifies a content source: either a file on disk with a
// format tag, or raw text already extracted from a web page.
// A DocumentRef is immutable once created; construct it with FileRef or WebRef.
type DocumentRef struct {
	// Path is the file path. Empty for web references.
	Path string `json:"path,omitempty"`

	// Format is the content format tag.
	Format Format `json:"format"`

	// URL is the page the web text was taken from, if known. Informational only.
	URL string `json:"url,omitempty"`

	// WebText is the extracted page text. Empty for file references.
	WebText string `json:"-"`
}

// FileRef builds a reference to the file at path, inferring the format from
// its extension.
func FileRef(path string) (DocumentRef, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return DocumentRef{}, err
	}
	return DocumentRef{Path: path, Format: f}, nil
}

// WebRef builds a reference to already-extracted web text.
func WebRef(url, text string) DocumentRef {
	return DocumentRef{Format: FormatWeb, URL: url, WebText: text}
}

// IsWeb reports whether the reference carries web text rather than a file.
func (r DocumentRef) IsWeb() bool { return r.Format == FormatWeb }

// Identifier returns the stable key the vector index for this reference is
// stored under. Files are keyed by base name; web text by a digest of the text.
func (r DocumentRef) Identifier() string {
	if r.IsWeb() {
		sum := sha256.Sum256([]byte(r.WebText))
		return "web-" + hex.EncodeToString(sum[:8])
	}
	return filepath.Base(r.Path)
}

// Source returns a human-readable origin for log lines and chunk metadata.
func (r DocumentRef) Source() string {
	if r.IsWeb() {
		if r.URL != "" {
			return r.URL
		}
		return r.Identifier()
	}
	return r.Path
}

// Chunk is a contiguous text segment of a document.
type Chunk struct {
	// Source is the identifier of the document the chunk was cut from.
	Source string `json:"source"`

	// Ordinal is the zero-based position of the chunk in its document.
	Ordinal int `json:"ordinal"`

	// Text is the chunk content.
	Text string `json:"text"`
}

// Blank reports whether the chunk contains only whitespace.
func (c Chunk) Blank() bool { return strings.TrimSpace(c.Text) == "" }

// Hit is a chunk returned by a retrieval query together with its similarity
// to the question.
type Hit struct {
	Chunk
	// Score is the cosine similarity between the question and the chunk.
	Score float32 `json:"score"`
}

// Result is the ordered output of a retrieval query, best match first.
type Result []Hit

// Chunks returns the chunks of r in order.
func (r Result) Chunks() []Chunk {
	out := make([]Chunk, len(r))
	for i, h := range r {
		out[i] = h.Chunk
	}
	return out
}

// Intent is the detected purpose of a question.
type Intent int

const (
	// IntentQuestionAnswering asks for a specific fact from the document.
	IntentQuestionAnswering Intent = iota
	// IntentSummary asks for an overview of the document.
	IntentSummary
)

// String returns the wire name of the intent.
func (i Intent) String() string {
	if i == IntentSummary {
		return "summary"
	}
	return "question-answering"
}

// MarshalText implements encoding.TextMarshaler.
func (i Intent) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// Mode selects how a question is answered.
type Mode int

const (
	// ModeGrounded answers strictly from a document's retrieved chunks.
	ModeGrounded Mode = iota
	// ModeGlobal sends the raw question to the generator with no retrieval.
	ModeGlobal
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	if m == ModeGlobal {
		return "global"
	}
	return "grounded"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Answer is the outcome of a question.
type Answer struct {
	// Text is the generated reply, or the insufficient-context sentinel.
	Text string `json:"answer"`

	// Grounding holds the chunks the reply was conditioned on. Empty when the
	// context was insufficient or the answer came from global mode.
	Grounding []Chunk `json:"grounding"`

	// Intent is the detected question intent. Always QuestionAnswering in
	// global mode.
	Intent Intent `json:"intent"`

	// Mode records whether the answer was grounded or global.
	Mode Mode `json:"mode"`

	// Insufficient is true when the reply is the insufficient-context sentinel.
	// This is a successful outcome, not an error.
	Insufficient bool `json:"insufficient"`
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator turns a prompt into generated text. Implementations must be safe
// to call from multiple goroutines.
type Generator interface {
	// Generate returns the model's reply to prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Named is implemented by capabilities that can report which backend they
// talk to. It is used to label provider errors and metrics.
type Named interface {
	Name() string
}

// NameOf returns v's backend name, or "unknown".
func NameOf(v any) string {
	if n, ok := v.(Named); ok {
		return n.Name()
	}
	return "unknown"
}
