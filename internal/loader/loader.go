// Package loader turns a rag.DocumentRef into plain text. Each format has an
// Extractor; the Registry dispatches on the reference's format tag and maps
// failures onto rag.ErrUnsupportedFormat and rag.ErrDocumentLoad.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultMaxBytes caps the size of a document file.
const DefaultMaxBytes = 50 << 20

// Document is the loaded content of a reference.
type Document struct {
	// Ref is the reference the document was loaded from.
	Ref rag.DocumentRef

	// Text is the extracted plain text.
	Text string

	// Raw is the unprocessed source content, used to fingerprint the index.
	Raw []byte
}

// Loader loads documents.
type Loader interface {
	// Read returns the raw source bytes behind ref without extracting text.
	Read(ctx context.Context, ref rag.DocumentRef) ([]byte, error)

	// Extract converts raw bytes previously returned by Read into text.
	Extract(ctx context.Context, ref rag.DocumentRef, raw []byte) (string, error)
}

// Extractor converts the raw bytes of one format into plain text.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, raw []byte) (string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, raw []byte) (string, error) { return f(ctx, raw) }

// Ensure Registry implements Loader.
var _ Loader = (*Registry)(nil)

// Registry is a Loader that dispatches file references by format.
type Registry struct {
	extractors map[rag.Format]Extractor
	maxBytes   int64
}

// NewRegistry returns a Registry with no extractors. Files larger than
// maxBytes fail to load; zero selects DefaultMaxBytes.
func NewRegistry(maxBytes int64) *Registry {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Registry{extractors: make(map[rag.Format]Extractor), maxBytes: maxBytes}
}

// Default returns a Registry wired with every built-in extractor.
func Default() *Registry { return DefaultWithLimit(0) }

// DefaultWithLimit is Default with a custom file size cap.
func DefaultWithLimit(maxBytes int64) *Registry {
	r := NewRegistry(maxBytes)
	r.Register(rag.FormatTXT, ExtractorFunc(extractText))
	r.Register(rag.FormatCSV, ExtractorFunc(extractCSV))
	r.Register(rag.FormatDOCX, ExtractorFunc(extractDOCX))
	r.Register(rag.FormatPDF, NewPDF())
	return r
}

// Register installs e for format, replacing any previous extractor.
func (r *Registry) Register(format rag.Format, e Extractor) {
	r.extractors[format] = e
}

// Load reads and extracts the document behind ref.
func (r *Registry) Load(ctx context.Context, ref rag.DocumentRef) (*Document, error) {
	raw, err := r.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	text, err := r.Extract(ctx, ref, raw)
	if err != nil {
		return nil, err
	}
	return &Document{Ref: ref, Text: text, Raw: raw}, nil
}

// Read implements Loader. Web references carry their text already and it is
// returned as the raw content.
func (r *Registry) Read(_ context.Context, ref rag.DocumentRef) ([]byte, error) {
	if ref.IsWeb() {
		return []byte(ref.WebText), nil
	}
	if _, ok := r.extractors[ref.Format]; !ok {
		return nil, fmt.Errorf("loader: %s: %w: format %q", ref.Path, rag.ErrUnsupportedFormat, ref.Format)
	}

	info, err := os.Stat(ref.Path)
	if err != nil {
		return nil, loadErr(ref.Path, err)
	}
	if info.IsDir() {
		return nil, loadErr(ref.Path, fmt.Errorf("is a directory"))
	}
	if info.Size() > r.maxBytes {
		return nil, loadErr(ref.Path, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), r.maxBytes))
	}

	raw, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, loadErr(ref.Path, err)
	}
	return raw, nil
}

// Extract implements Loader.
func (r *Registry) Extract(ctx context.Context, ref rag.DocumentRef, raw []byte) (string, error) {
	if ref.IsWeb() {
		return ref.WebText, nil
	}
	e, ok := r.extractors[ref.Format]
	if !ok {
		return "", fmt.Errorf("loader: %s: %w: format %q", ref.Path, rag.ErrUnsupportedFormat, ref.Format)
	}

	text, err := e.Extract(ctx, raw)
	if err != nil {
		return "", loadErr(ref.Path, err)
	}

	logging.FromContext(ctx).Debug("loader: extracted text",
		slog.String("path", ref.Path),
		slog.String("format", string(ref.Format)),
		slog.Int("bytes", len(raw)),
		slog.Int("chars", utf8.RuneCountInString(text)),
	)
	return text, nil
}

// loadErr wraps a read or parse failure as rag.ErrDocumentLoad.
func loadErr(path string, err error) error {
	return fmt.Errorf("loader: %s: %w: %w", path, rag.ErrDocumentLoad, err)
}

// extractText decodes a plain text file, replacing invalid UTF-8 and a
// leading byte order mark.
func extractText(_ context.Context, raw []byte) (string, error) {
	s := strings.TrimPrefix(string(raw), "\ufeff")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s, nil
}
