package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Store persists indexes keyed by document identifier.
// Implementations must be safe for concurrent use and must replace an
// existing index atomically: a concurrent Load observes either the old index
// or the new one, never a mix.
type Store interface {
	// Load returns the index persisted under id, or an error wrapping
	// rag.ErrIndexNotFound when there is none.
	Load(ctx context.Context, id string) (*Index, error)

	// Persist writes idx under idx.ID, replacing any previous index.
	Persist(ctx context.Context, idx *Index) error

	// Close releases any resources held by the store.
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	// BackendFile stores gob-encoded indexes in a local directory.
	BackendFile Backend = "file"
	// BackendSQLite stores indexes in a local SQLite database.
	BackendSQLite Backend = "sqlite"
	// BackendQdrant stores each index as a Qdrant collection behind an alias.
	BackendQdrant Backend = "qdrant"
	// BackendPgvector stores indexes in PostgreSQL with the pgvector extension.
	BackendPgvector Backend = "pgvector"
)

// safeName maps an identifier onto the characters allowed in file names and
// collection names. Distinct identifiers that differ only in disallowed
// characters map to the same name; use storageKey where that matters.
func safeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// storageKey is safeName(id) with a short hash of the raw identifier
// appended, so "a b.txt" and "a_b.txt" never share a file or alias.
func storageKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return safeName(id) + "-" + hex.EncodeToString(sum[:4])
}

// checkIndex rejects indexes that cannot be persisted.
func checkIndex(idx *Index) error {
	if idx == nil || idx.ID == "" {
		return fmt.Errorf("index: refusing to persist an index without an identifier")
	}
	if len(idx.Chunks) != len(idx.Vectors) {
		return fmt.Errorf("index: %s has %d chunks but %d vectors", idx.ID, len(idx.Chunks), len(idx.Vectors))
	}
	return nil
}
