package index

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Kind names a retrieval strategy.
type Kind string

const (
	// KindSimilarity returns the K chunks most similar to the question.
	KindSimilarity Kind = "similarity"
	// KindThreshold returns up to K chunks whose similarity is at least
	// ScoreThreshold. It may return fewer than K, including none.
	KindThreshold Kind = "threshold"
	// KindMMR picks K chunks from the FetchK most similar, trading relevance
	// against redundancy with the already selected chunks.
	KindMMR Kind = "mmr"
)

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSimilarity, KindThreshold, KindMMR:
		return k, nil
	default:
		return "", fmt.Errorf("index: unknown retrieval strategy %q (want similarity, threshold or mmr): %w", s, rag.ErrConfiguration)
	}
}

// Strategy is the deployment-wide retrieval configuration.
type Strategy struct {
	// Kind selects the algorithm.
	Kind Kind
	// K is the maximum number of chunks returned.
	K int
	// FetchK is the candidate pool size for MMR. Ignored by other kinds.
	FetchK int
	// ScoreThreshold is the minimum cosine similarity for KindThreshold.
	ScoreThreshold float32
	// Lambda weighs relevance (1) against diversity (0) for MMR.
	Lambda float32
}

// DefaultStrategy returns plain top-6 similarity retrieval.
func DefaultStrategy() Strategy {
	return Strategy{
		Kind:           KindSimilarity,
		K:              6,
		FetchK:         20,
		ScoreThreshold: 0.5,
		Lambda:         0.5,
	}
}

// Validate checks the strategy parameters and fails with rag.ErrConfiguration.
func (s Strategy) Validate() error {
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if s.K <= 0 {
		return fmt.Errorf("index: retrieval k must be positive, got %d: %w", s.K, rag.ErrConfiguration)
	}
	switch s.Kind {
	case KindThreshold:
		if s.ScoreThreshold < -1 || s.ScoreThreshold > 1 {
			return fmt.Errorf("index: score threshold %v outside [-1, 1]: %w", s.ScoreThreshold, rag.ErrConfiguration)
		}
	case KindMMR:
		if s.FetchK < s.K {
			return fmt.Errorf("index: fetch_k %d must be at least k %d: %w", s.FetchK, s.K, rag.ErrConfiguration)
		}
		if s.Lambda < 0 || s.Lambda > 1 {
			return fmt.Errorf("index: mmr lambda %v outside [0, 1]: %w", s.Lambda, rag.ErrConfiguration)
		}
	}
	return nil
}

// Query embeds question and searches the index with s.
func (idx *Index) Query(ctx context.Context, emb rag.Embedder, question string, s Strategy) (rag.Result, error) {
	vecs, err := emb.Embed(ctx, []string{question})
	if err != nil {
		return nil, &rag.EmbeddingProviderError{Provider: rag.NameOf(emb), Err: err}
	}
	if len(vecs) != 1 {
		return nil, &rag.EmbeddingProviderError{
			Provider: rag.NameOf(emb),
			Err:      fmt.Errorf("expected 1 embedding for the question, got %d", len(vecs)),
		}
	}
	return idx.Search(vecs[0], s)
}

// Search ranks the index against an already embedded question.
func (idx *Index) Search(q []float32, s Strategy) (rag.Result, error) {
	if len(q) != idx.Dimension {
		return nil, fmt.Errorf("index: question vector has dimension %d, index %s has %d", len(q), idx.ID, idx.Dimension)
	}

	ranked := idx.rank(q)

	switch s.Kind {
	case KindThreshold:
		out := make(rag.Result, 0, s.K)
		for _, c := range ranked {
			if len(out) == s.K || c.hit.Score < s.ScoreThreshold {
				break
			}
			out = append(out, c.hit)
		}
		return out, nil

	case KindMMR:
		return idx.mmr(ranked, s), nil

	default:
		out := make(rag.Result, 0, s.K)
		for _, c := range ranked[:min(s.K, len(ranked))] {
			out = append(out, c.hit)
		}
		return out, nil
	}
}

// scored is a hit plus its position in idx.Chunks.
type scored struct {
	pos int
	hit rag.Hit
}

// rank scores every chunk against q, best first. Ties keep document order.
func (idx *Index) rank(q []float32) []scored {
	out := make([]scored, len(idx.Chunks))
	for i, c := range idx.Chunks {
		out[i] = scored{pos: i, hit: rag.Hit{Chunk: c, Score: cosine(q, idx.Vectors[i])}}
	}
	slices.SortStableFunc(out, func(a, b scored) int {
		switch {
		case a.hit.Score > b.hit.Score:
			return -1
		case a.hit.Score < b.hit.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}

// mmr greedily selects up to K hits from the top FetchK candidates,
// maximising lambda*sim(q, d) - (1-lambda)*max sim(d, selected).
func (idx *Index) mmr(ranked []scored, s Strategy) rag.Result {
	pool := ranked[:min(s.FetchK, len(ranked))]
	k := min(s.K, len(pool))
	lambda := float64(s.Lambda)

	selected := make(rag.Result, 0, k)
	used := make([]bool, len(pool))
	// redundancy[i] is the max similarity of pool[i] to any selected chunk.
	redundancy := make([]float64, len(pool))

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range pool {
			if used[i] {
				continue
			}
			score := lambda * float64(c.hit.Score)
			if len(selected) > 0 {
				score -= (1 - lambda) * redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}

		used[best] = true
		selected = append(selected, pool[best].hit)

		bv := idx.Vectors[pool[best].pos]
		for i, c := range pool {
			if used[i] {
				continue
			}
			sim := float64(cosine(idx.Vectors[c.pos], bv))
			if len(selected) == 1 || sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}

	return selected
}

// cosine returns the cosine similarity of a and b, or 0 if either is a zero
// vector.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
