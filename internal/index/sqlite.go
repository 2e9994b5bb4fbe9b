package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// SQLiteStore persists indexes in a SQLite database. Each Persist replaces the
// index inside one transaction.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs the schema
// migration. Use ":memory:" in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open sqlite %s: %w", path, err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS indexes (
    id            TEXT    PRIMARY KEY,
    fingerprint   TEXT    NOT NULL,
    dimension     INTEGER NOT NULL,
    chunk_size    INTEGER NOT NULL,
    chunk_overlap INTEGER NOT NULL,
    built_at      INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE TABLE IF NOT EXISTS index_chunks (
    index_id  TEXT    NOT NULL,
    ordinal   INTEGER NOT NULL,
    source    TEXT    NOT NULL,
    content   TEXT    NOT NULL,
    vector    BLOB    NOT NULL,
    PRIMARY KEY (index_id, ordinal)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: sqlite migrate: %w", err)
	}
	return nil
}

// Load reads the index stored for id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Index, error) {
	idx := &Index{ID: id}
	var builtAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, dimension, chunk_size, chunk_overlap, built_at FROM indexes WHERE id = ?`, id,
	).Scan(&idx.Fingerprint, &idx.Dimension, &idx.ChunkSize, &idx.ChunkOverlap, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", id, rag.ErrIndexNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: sqlite load %s: %w", id, err)
	}
	idx.BuiltAt = time.Unix(0, builtAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, source, content, vector FROM index_chunks WHERE index_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("index: sqlite load chunks %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c rag.Chunk
		var blob []byte
		if err := rows.Scan(&c.Ordinal, &c.Source, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("index: sqlite scan %s: %w", id, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("index: sqlite vector %s/%d: %w", id, c.Ordinal, err)
		}
		idx.Chunks = append(idx.Chunks, c)
		idx.Vectors = append(idx.Vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: sqlite rows %s: %w", id, err)
	}
	return idx, nil
}

// Persist replaces the index for idx.ID in a single transaction.
func (s *SQLiteStore) Persist(ctx context.Context, idx *Index) error {
	if err := checkIndex(idx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_chunks WHERE index_id = ?`, idx.ID); err != nil {
		return fmt.Errorf("index: sqlite clear %s: %w", idx.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO indexes (id, fingerprint, dimension, chunk_size, chunk_overlap, built_at) VALUES (?, ?, ?, ?, ?, ?)`,
		idx.ID, idx.Fingerprint, idx.Dimension, idx.ChunkSize, idx.ChunkOverlap, idx.BuiltAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("index: sqlite header %s: %w", idx.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO index_chunks (index_id, ordinal, source, content, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range idx.Chunks {
		if _, err := stmt.ExecContext(ctx, idx.ID, c.Ordinal, c.Source, c.Text, encodeVector(idx.Vectors[i])); err != nil {
			return fmt.Errorf("index: sqlite insert %s/%d: %w", idx.ID, c.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: sqlite commit %s: %w", idx.ID, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: sqlite close: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
