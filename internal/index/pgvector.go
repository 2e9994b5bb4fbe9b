package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/docqa-go/internal/rag"
)

// PgvectorStore persists indexes in PostgreSQL using the pgvector extension.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

// NewPgvectorStore connects to the database at connStr, verifies the
// connection and creates the schema if needed.
func NewPgvectorStore(ctx context.Context, connStr string) (*PgvectorStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("index: pgvector dsn is empty: %w", rag.ErrConfiguration)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("index: pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("index: pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping reports whether the database is reachable.
func (s *PgvectorStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS docqa_indexes (
    id            TEXT PRIMARY KEY,
    fingerprint   TEXT NOT NULL,
    dimension     INTEGER NOT NULL,
    chunk_size    INTEGER NOT NULL,
    chunk_overlap INTEGER NOT NULL,
    built_at      TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS docqa_chunks (
    index_id  TEXT NOT NULL REFERENCES docqa_indexes(id) ON DELETE CASCADE,
    ordinal   INTEGER NOT NULL,
    source    TEXT NOT NULL,
    content   TEXT NOT NULL,
    embedding vector NOT NULL,
    PRIMARY KEY (index_id, ordinal)
);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("index: pgvector migrate: %w", err)
	}
	return nil
}

// Load reads the index stored for id.
func (s *PgvectorStore) Load(ctx context.Context, id string) (*Index, error) {
	idx := &Index{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, dimension, chunk_size, chunk_overlap, built_at FROM docqa_indexes WHERE id = $1`, id,
	).Scan(&idx.Fingerprint, &idx.Dimension, &idx.ChunkSize, &idx.ChunkOverlap, &idx.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", id, rag.ErrIndexNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: pgvector load %s: %w", id, err)
	}
	idx.BuiltAt = idx.BuiltAt.UTC()

	rows, err := s.pool.Query(ctx,
		`SELECT ordinal, source, content, embedding FROM docqa_chunks WHERE index_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("index: pgvector load chunks %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c rag.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.Ordinal, &c.Source, &c.Text, &vec); err != nil {
			return nil, fmt.Errorf("index: pgvector scan %s: %w", id, err)
		}
		idx.Chunks = append(idx.Chunks, c)
		idx.Vectors = append(idx.Vectors, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: pgvector rows %s: %w", id, err)
	}
	return idx, nil
}

// Persist replaces the index for idx.ID inside one transaction.
func (s *PgvectorStore) Persist(ctx context.Context, idx *Index) error {
	if err := checkIndex(idx); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("index: pgvector begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM docqa_indexes WHERE id = $1`, idx.ID); err != nil {
		return fmt.Errorf("index: pgvector clear %s: %w", idx.ID, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO docqa_indexes (id, fingerprint, dimension, chunk_size, chunk_overlap, built_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		idx.ID, idx.Fingerprint, idx.Dimension, idx.ChunkSize, idx.ChunkOverlap, idx.BuiltAt,
	); err != nil {
		return fmt.Errorf("index: pgvector header %s: %w", idx.ID, err)
	}

	batch := &pgx.Batch{}
	for i, c := range idx.Chunks {
		batch.Queue(
			`INSERT INTO docqa_chunks (index_id, ordinal, source, content, embedding) VALUES ($1, $2, $3, $4, $5)`,
			idx.ID, c.Ordinal, c.Source, c.Text, pgvector.NewVector(idx.Vectors[i]),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("index: pgvector insert chunks %s: %w", idx.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("index: pgvector commit %s: %w", idx.ID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}
