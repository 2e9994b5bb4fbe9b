package index

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/54b3r/docqa-go/internal/rag"
)

// fileFormatVersion is bumped whenever the on-disk envelope changes shape.
// Files with another version are treated as absent and rebuilt.
const fileFormatVersion = 1

// fileEnvelope is the gob payload written to disk.
type fileEnvelope struct {
	Version int
	Index   *Index
}

// FileStore persists each index as a gob file under a directory.
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers never see a partially written index.
type FileStore struct {
	// dir is the directory holding one file per identifier.
	dir string
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("index: file store directory is empty: %w", rag.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("index: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// path returns the file the index for id is stored in.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, storageKey(id)+".idx")
}

// Load decodes the index stored for id.
func (s *FileStore) Load(_ context.Context, id string) (*Index, error) {
	f, err := os.Open(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("index: %s: %w", id, rag.ErrIndexNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", id, err)
	}
	defer f.Close()

	var env fileEnvelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return nil, fmt.Errorf("index: decode %s: %w", id, err)
	}
	if env.Version != fileFormatVersion || env.Index == nil {
		return nil, fmt.Errorf("index: %s has format version %d: %w", id, env.Version, rag.ErrIndexNotFound)
	}
	if env.Index.ID != id {
		return nil, fmt.Errorf("index: file for %s holds %s: %w", id, env.Index.ID, rag.ErrIndexNotFound)
	}
	return env.Index, nil
}

// Persist writes idx atomically via write-to-temp then rename.
func (s *FileStore) Persist(_ context.Context, idx *Index) error {
	if err := checkIndex(idx); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+safeName(idx.ID)+"-*")
	if err != nil {
		return fmt.Errorf("index: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(fileEnvelope{Version: fileFormatVersion, Index: idx}); err != nil {
		return fmt.Errorf("index: encode %s: %w", idx.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("index: sync %s: %w", idx.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: close %s: %w", idx.ID, err)
	}
	if err := os.Rename(tmpName, s.path(idx.ID)); err != nil {
		return fmt.Errorf("index: replace %s: %w", idx.ID, err)
	}
	committed = true
	return nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error { return nil }
