package index

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/rag"
)

// qdrantUpsertBatch caps the number of points sent per Upsert call.
const qdrantUpsertBatch = 256

// Payload keys written on every point.
const (
	payloadDocument     = "document_id"
	payloadSource       = "source"
	payloadOrdinal      = "ordinal"
	payloadContent      = "content"
	payloadFingerprint  = "fingerprint"
	payloadChunkSize    = "chunk_size"
	payloadChunkOverlap = "chunk_overlap"
	payloadBuiltAt      = "built_at"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Prefix namespaces the collections and aliases this store creates
	// (default: docqa).
	Prefix string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore persists each index build as its own collection and exposes
// the current build through an alias named after the document identifier.
// Persist creates and fills a fresh collection, then swaps the alias in one
// UpdateAliases call, so readers never observe a half-written index.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore connects to Qdrant and returns a ready-to-use store.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "docqa"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Client exposes the underlying client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// alias returns the stable alias an identifier resolves through.
func (s *QdrantStore) alias(id string) string {
	return s.cfg.Prefix + "-" + storageKey(id)
}

// currentCollection returns the collection alias points at, or "" if the
// alias does not exist.
func (s *QdrantStore) currentCollection(ctx context.Context, alias string) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("index: qdrant list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// Load reads every point of the collection behind the identifier's alias.
func (s *QdrantStore) Load(ctx context.Context, id string) (*Index, error) {
	alias := s.alias(id)
	collection, err := s.currentCollection(ctx, alias)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, fmt.Errorf("index: %s: %w", id, rag.ErrIndexNotFound)
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant count %s: %w", collection, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("index: %s: empty collection %s: %w", id, collection, rag.ErrIndexNotFound)
	}

	limit := uint32(count) //nolint:gosec // a single document never approaches 2^32 chunks
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant scroll %s: %w", collection, err)
	}

	idx := &Index{ID: id, Chunks: make([]rag.Chunk, len(points)), Vectors: make([][]float32, len(points))}
	for _, p := range points {
		pl := p.GetPayload()
		ord := int(pl[payloadOrdinal].GetIntegerValue())
		if ord < 0 || ord >= len(points) {
			return nil, fmt.Errorf("index: qdrant %s: ordinal %d out of range", collection, ord)
		}
		idx.Chunks[ord] = rag.Chunk{
			Source:  pl[payloadSource].GetStringValue(),
			Ordinal: ord,
			Text:    pl[payloadContent].GetStringValue(),
		}
		idx.Vectors[ord] = p.GetVectors().GetVector().GetData() //nolint:staticcheck // dense accessor is the stable one for single unnamed vectors
		if ord == 0 {
			if doc := pl[payloadDocument].GetStringValue(); doc != id {
				return nil, fmt.Errorf("index: collection %s holds %q, not %s: %w", collection, doc, id, rag.ErrIndexNotFound)
			}
			idx.Fingerprint = pl[payloadFingerprint].GetStringValue()
			idx.ChunkSize = int(pl[payloadChunkSize].GetIntegerValue())
			idx.ChunkOverlap = int(pl[payloadChunkOverlap].GetIntegerValue())
			idx.BuiltAt = time.Unix(0, pl[payloadBuiltAt].GetIntegerValue()).UTC()
		}
	}
	idx.Dimension = len(idx.Vectors[0])
	return idx, nil
}

// Persist writes idx into a new collection and repoints the alias at it.
// The previous collection, if any, is dropped afterwards.
func (s *QdrantStore) Persist(ctx context.Context, idx *Index) error {
	if err := checkIndex(idx); err != nil {
		return err
	}

	alias := s.alias(idx.ID)
	collection := fmt.Sprintf("%s-%d", alias, idx.BuiltAt.UnixNano())

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.Dimension), //nolint:gosec // dimensions are bounded
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("index: qdrant create collection %s: %w", collection, err)
	}

	if err := s.upsert(ctx, collection, idx); err != nil {
		_ = s.client.DeleteCollection(ctx, collection)
		return err
	}

	previous, err := s.currentCollection(ctx, alias)
	if err != nil {
		_ = s.client.DeleteCollection(ctx, collection)
		return err
	}

	ops := []*qdrant.AliasOperations{qdrant.NewAliasCreate(alias, collection)}
	if previous != "" {
		ops = append([]*qdrant.AliasOperations{qdrant.NewAliasDelete(alias)}, ops...)
	}
	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		_ = s.client.DeleteCollection(ctx, collection)
		return fmt.Errorf("index: qdrant swap alias %s: %w", alias, err)
	}

	if previous != "" && previous != collection {
		if err := s.client.DeleteCollection(ctx, previous); err != nil {
			return fmt.Errorf("index: qdrant drop %s: %w", previous, err)
		}
	}
	return nil
}

// upsert writes all points of idx into collection in batches.
func (s *QdrantStore) upsert(ctx context.Context, collection string, idx *Index) error {
	for start := 0; start < len(idx.Chunks); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(idx.Chunks))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			c := idx.Chunks[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)), //nolint:gosec // i is non-negative
				Vectors: qdrant.NewVectors(idx.Vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadDocument:     idx.ID,
					payloadSource:       c.Source,
					payloadOrdinal:      i,
					payloadContent:      c.Text,
					payloadFingerprint:  idx.Fingerprint,
					payloadChunkSize:    idx.ChunkSize,
					payloadChunkOverlap: idx.ChunkOverlap,
					payloadBuiltAt:      idx.BuiltAt.UnixNano(),
				}),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("index: qdrant upsert %s: %w", collection, err)
		}
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
