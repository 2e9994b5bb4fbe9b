// Package watch pre-indexes documents dropped into a directory. Existing
// files are indexed on start; new or rewritten files are indexed once they
// have been quiet for the debounce interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// DefaultDebounce is how long a file must stay unchanged before it is indexed.
const DefaultDebounce = 2 * time.Second

// Registrar registers a file and builds its index. *agent.Assistant
// satisfies it.
type Registrar interface {
	AddFile(ctx context.Context, path string) (store.Document, error)
	Ingest(ctx context.Context, id string) error
}

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch. Subdirectories are not watched.
	Dir string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher indexes supported documents that appear in a directory.
type Watcher struct {
	reg      Registrar
	dir      string
	debounce time.Duration
	log      *slog.Logger
}

// New returns a Watcher for cfg.Dir. The directory is created if missing.
func New(reg Registrar, cfg Config) (*Watcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("watch: registrar is required: %w", rag.ErrConfiguration)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch: directory is required: %w", rag.ErrConfiguration)
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("watch: create %s: %w", cfg.Dir, err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		reg:      reg,
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		log:      cfg.Logger.With(slog.String("dir", cfg.Dir)),
	}, nil
}

// Run indexes the files already present and then watches for changes until
// ctx is cancelled. A failed document is logged and skipped; Run only
// returns early when the watcher itself fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}

	if err := w.scan(ctx); err != nil {
		return err
	}
	w.log.Info("watching for documents", slog.Duration("debounce", w.debounce))

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := indexable(ev); ok {
				pending[path] = time.Now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch: fsnotify error", slog.Any("error", err))

		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(pending, path)
				w.index(ctx, path)
			}
		}
	}
}

// scan indexes every supported file already in the directory.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watch: read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !supported(path) {
			continue
		}
		w.index(ctx, path)
	}
	return nil
}

// index registers and ingests one file.
func (w *Watcher) index(ctx context.Context, path string) {
	log := w.log.With(slog.String("path", path))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Removed or replaced by a directory before the debounce fired.
		return
	}

	start := time.Now()
	doc, err := w.reg.AddFile(ctx, path)
	if err != nil {
		log.Warn("watch: register failed", slog.Any("error", err))
		return
	}
	if err := w.reg.Ingest(ctx, doc.ID); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn("watch: ingestion failed", slog.String("identifier", doc.ID), slog.Any("error", err))
		return
	}
	log.Info("document indexed",
		slog.String("identifier", doc.ID),
		slog.Duration("duration", time.Since(start)),
	)
}

// indexable reports whether ev should schedule its file for indexing.
// Only creates and writes of visible, supported files count; removals leave
// the persisted index alone.
func indexable(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if !supported(ev.Name) {
		return "", false
	}
	return ev.Name, true
}

// supported skips hidden files, which includes in-progress uploads, and
// anything without a loadable extension.
func supported(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	_, err := rag.FormatForPath(path)
	return err == nil
}
