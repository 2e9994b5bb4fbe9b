// Package index builds, persists, and queries per-document vector indexes.
//
// An Index pairs every chunk of one document with its embedding and answers
// retrieval queries with one of three strategies (top-k similarity, score
// threshold, or maximal marginal relevance). Indexes are persisted through a
// Store and memoised by a Cache that guarantees at most one build per
// identifier at a time.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// embedBatchSize caps the number of chunks sent to the embedder per call.
const embedBatchSize = 32

// Index is the retrieval structure for one document. It is immutable once
// built; a rebuild produces a new Index that replaces the old one.
type Index struct {
	// ID is the document identifier the index is keyed by.
	ID string

	// Fingerprint is a digest of the source content and chunking config the
	// index was built from. Empty when the builder did not compute one.
	Fingerprint string

	// Dimension is the length of every vector in Vectors.
	Dimension int

	// ChunkSize and ChunkOverlap record the chunker configuration used.
	ChunkSize    int
	ChunkOverlap int

	// Chunks holds the document chunks in ordinal order.
	Chunks []rag.Chunk

	// Vectors is parallel to Chunks.
	Vectors [][]float32

	// BuiltAt is when the embeddings were computed.
	BuiltAt time.Time
}

// Len returns the number of chunks in the index.
func (idx *Index) Len() int { return len(idx.Chunks) }

// BuildParams describes what an index is being built from.
type BuildParams struct {
	// ID is the document identifier.
	ID string
	// Fingerprint is stored on the index for later staleness checks.
	Fingerprint string
	// ChunkSize and ChunkOverlap are recorded for diagnostics.
	ChunkSize    int
	ChunkOverlap int
}

// Build embeds every chunk and assembles an Index. It fails with
// rag.ErrEmptyDocument when chunks is empty, and with a
// *rag.EmbeddingProviderError when the embedder fails or misbehaves.
func Build(ctx context.Context, emb rag.Embedder, p BuildParams, chunks []rag.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("index: build %s: %w", p.ID, rag.ErrEmptyDocument)
	}

	provider := rag.NameOf(emb)
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := emb.Embed(ctx, texts)
		if err != nil {
			return nil, &rag.EmbeddingProviderError{Provider: provider, Err: err}
		}
		if len(batch) != len(texts) {
			return nil, &rag.EmbeddingProviderError{
				Provider: provider,
				Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(batch)),
			}
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, &rag.EmbeddingProviderError{
				Provider: provider,
				Err:      fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim),
			}
		}
	}

	return &Index{
		ID:           p.ID,
		Fingerprint:  p.Fingerprint,
		Dimension:    dim,
		ChunkSize:    p.ChunkSize,
		ChunkOverlap: p.ChunkOverlap,
		Chunks:       chunks,
		Vectors:      vectors,
		BuiltAt:      time.Now().UTC(),
	}, nil
}

// Fingerprint digests raw source content together with the chunking config,
// so a change to either invalidates a persisted index.
func Fingerprint(content []byte, chunkSize, chunkOverlap int) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte("|" + strconv.Itoa(chunkSize) + "|" + strconv.Itoa(chunkOverlap)))
	return hex.EncodeToString(h.Sum(nil))
}
