package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// DocumentStatus pairs a registered document with its index state.
type DocumentStatus struct {
	Document store.Document  `json:"document"`
	Status   pipeline.Status `json:"status"`
}

// Document returns the registered document id.
func (a *Assistant) Document(ctx context.Context, id string) (store.Document, error) {
	doc, err := a.documents.Document(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Document{}, fmt.Errorf("agent: %q: %w", id, ErrUnknownDocument)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("agent: look up %q: %w", id, err)
	}
	return doc, nil
}

// SaveUpload writes r into the upload directory under a fresh UUID name that
// keeps the extension of name, and registers it. The extension must be a
// supported format. The file is written to a temporary name and renamed, so
// a failed upload never leaves a partial document behind.
func (a *Assistant) SaveUpload(ctx context.Context, name string, r io.Reader) (store.Document, error) {
	if a.uploadDir == "" {
		return store.Document{}, fmt.Errorf("agent: upload directory is not configured: %w", rag.ErrConfiguration)
	}
	format, err := rag.FormatForPath(name)
	if err != nil {
		return store.Document{}, err
	}
	if err := os.MkdirAll(a.uploadDir, 0o750); err != nil {
		return store.Document{}, fmt.Errorf("agent: create upload dir %s: %w", a.uploadDir, err)
	}

	ext := strings.ToLower(filepath.Ext(name))
	dst := filepath.Join(a.uploadDir, uuid.NewString()+ext)

	tmp, err := os.CreateTemp(a.uploadDir, ".upload-*")
	if err != nil {
		return store.Document{}, fmt.Errorf("agent: create upload file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("agent: write upload %s: %w", name, err)
	}
	if n == 0 {
		return store.Document{}, fmt.Errorf("agent: upload %s: %w", name, rag.ErrEmptyDocument)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return store.Document{}, fmt.Errorf("agent: store upload %s: %w", name, err)
	}

	doc := store.Document{
		ID:        filepath.Base(dst),
		Format:    format,
		Path:      dst,
		Name:      filepath.Base(name),
		CreatedAt: time.Now(),
	}
	if err := a.documents.PutDocument(ctx, doc); err != nil {
		_ = os.Remove(dst)
		return store.Document{}, err
	}
	a.log(ctx).Info("document uploaded", "id", doc.ID, "name", doc.Name, "bytes", n)
	return doc, nil
}

// AddFile registers an existing file under its base name.
func (a *Assistant) AddFile(ctx context.Context, path string) (store.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return store.Document{}, fmt.Errorf("agent: resolve %s: %w", path, err)
	}
	ref, err := rag.FileRef(abs)
	if err != nil {
		return store.Document{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return store.Document{}, fmt.Errorf("agent: %s: %w: %w", path, rag.ErrDocumentLoad, err)
	}
	if info.IsDir() {
		return store.Document{}, fmt.Errorf("agent: %s is a directory: %w", path, rag.ErrDocumentLoad)
	}

	doc := store.Document{
		ID:        ref.Identifier(),
		Format:    ref.Format,
		Path:      abs,
		Name:      filepath.Base(abs),
		CreatedAt: time.Now(),
	}
	if err := a.documents.PutDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// AddWeb registers web text. When text is empty the page at url is fetched
// with a single GET and reduced to text.
func (a *Assistant) AddWeb(ctx context.Context, url, text string) (store.Document, error) {
	var ref rag.DocumentRef
	switch {
	case strings.TrimSpace(text) != "":
		ref = rag.WebRef(url, text)
	case url != "":
		fetched, err := a.fetcher.Fetch(ctx, url)
		if err != nil {
			return store.Document{}, err
		}
		ref = fetched
	default:
		return store.Document{}, fmt.Errorf("agent: web document needs a url or text: %w", rag.ErrEmptyDocument)
	}

	doc := store.Document{
		ID:        ref.Identifier(),
		Format:    rag.FormatWeb,
		URL:       ref.URL,
		Name:      ref.Source(),
		WebText:   ref.WebText,
		CreatedAt: time.Now(),
	}
	if err := a.documents.PutDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	a.log(ctx).Info("web document registered", "id", doc.ID, "source", doc.Name, "chars", len(doc.WebText))
	return doc, nil
}

// Ingest builds (or loads) the index of the registered document id.
func (a *Assistant) Ingest(ctx context.Context, id string) error {
	doc, err := a.Document(ctx, id)
	if err != nil {
		return err
	}
	return a.pipeline.Ingest(ctx, doc.Ref())
}

// Status reports the registered document id and its index state.
func (a *Assistant) Status(ctx context.Context, id string) (DocumentStatus, error) {
	doc, err := a.Document(ctx, id)
	if err != nil {
		return DocumentStatus{}, err
	}
	return DocumentStatus{Document: doc, Status: a.pipeline.Status(doc.ID)}, nil
}
