package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pageFile matches the per-page content files pdfcpu writes.
var pageFile = regexp.MustCompile(`_page_(\d+)\.txt$`)

// PDF extracts text from PDF files. pdfcpu validates the file and decodes
// each page's content stream; the text-showing operators in those streams
// are then turned into lines.
type PDF struct {
	// TempDir is where decoded content streams are written. Empty means the
	// system default.
	TempDir string
}

// NewPDF returns a PDF extractor using the system temp directory.
func NewPDF() *PDF { return &PDF{} }

// config returns a fresh pdfcpu configuration; pdfcpu mutates it per command.
func (p *PDF) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Extract implements Extractor.
func (p *PDF) Extract(ctx context.Context, raw []byte) (string, error) {
	if err := api.Validate(bytes.NewReader(raw), p.config()); err != nil {
		return "", fmt.Errorf("pdf: validate: %w", err)
	}

	dir, err := os.MkdirTemp(p.TempDir, "docqa-pdf-*")
	if err != nil {
		return "", fmt.Errorf("pdf: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractContent(bytes.NewReader(raw), dir, "doc", nil, p.config()); err != nil {
		return "", fmt.Errorf("pdf: extract content: %w", err)
	}

	pages, err := pageFiles(dir)
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(pages))
	for _, name := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("pdf: read %s: %w", name, err)
		}
		if t := strings.TrimSpace(ContentText(content)); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

// pageFiles lists the content files in dir ordered by page number.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pdf: list %s: %w", dir, err)
	}

	type page struct {
		n    int
		name string
	}
	var pages []page
	for _, e := range entries {
		m := pageFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, name: e.Name()})
	}
	slices.SortFunc(pages, func(a, b page) int { return a.n - b.n })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.name
	}
	return out, nil
}
