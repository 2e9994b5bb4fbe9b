package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Outcome reports where Resolve found the index it returned.
type Outcome int

const (
	// OutcomeMemory means the index was already held in memory.
	OutcomeMemory Outcome = iota
	// OutcomeStore means the index was loaded from the persistent store.
	OutcomeStore
	// OutcomeBuilt means the index was embedded and persisted by this call
	// (or by the in-flight call this one joined).
	OutcomeBuilt
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeMemory:
		return "memory"
	case OutcomeStore:
		return "store"
	case OutcomeBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// maxFlightJoins bounds how often Resolve joins a flight whose result turns
// out to be stale for the caller.
const maxFlightJoins = 3

// BuildFunc produces a fresh index. It is only called on a cache miss.
type BuildFunc func(ctx context.Context) (*Index, error)

// Cache memoises indexes by identifier in front of a Store. At most one
// load-or-build runs per identifier at a time; concurrent callers for the
// same identifier wait for and share its result.
type Cache struct {
	store      Store
	staleCheck bool
	logger     *slog.Logger

	mu  sync.RWMutex
	mem map[string]*Index

	group   singleflight.Group
	settled func(id string, idx *Index, err error)
}

// NewCache returns a Cache backed by store. When staleCheck is true, a cached
// or persisted index whose fingerprint differs from the requested one is
// rebuilt instead of reused.
func NewCache(store Store, staleCheck bool, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:      store,
		staleCheck: staleCheck,
		logger:     logger,
		mem:        make(map[string]*Index),
	}
}

type resolved struct {
	idx     *Index
	outcome Outcome
}

// Resolve returns the index for id, loading it from the store or calling
// build when neither memory nor the store hold a usable one.
//
// The shared load-or-build runs detached from ctx so that one caller giving
// up does not fail the others waiting on it; ctx only bounds how long this
// caller waits.
func (c *Cache) Resolve(ctx context.Context, id, fingerprint string, build BuildFunc) (*Index, Outcome, error) {
	if idx := c.cached(id, fingerprint); idx != nil {
		return idx, OutcomeMemory, nil
	}

	// A joined flight may have been started for older content; its result is
	// rechecked and, if stale for this caller, resolved again.
	for range maxFlightJoins {
		ch := c.group.DoChan(id, func() (any, error) {
			return c.loadOrBuild(context.WithoutCancel(ctx), id, fingerprint, build)
		})

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, 0, res.Err
			}
			r := res.Val.(resolved)
			if c.fresh(r.idx, fingerprint) {
				return r.idx, r.outcome, nil
			}
			c.logger.Debug("joined build was for other content, resolving again", "id", id)
		}
	}
	return nil, 0, fmt.Errorf("index: %s: content changed during %d consecutive builds", id, maxFlightJoins)
}

// OnSettled registers fn to be called once per load-or-build flight when it
// finishes, whether or not any caller is still waiting for it. It must be
// called before the first Resolve.
func (c *Cache) OnSettled(fn func(id string, idx *Index, err error)) {
	c.settled = fn
}

// Get returns the in-memory index for id without touching the store.
func (c *Cache) Get(id string) (*Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.mem[id]
	return idx, ok
}

// Forget drops id from memory. The persisted copy is left alone.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	delete(c.mem, id)
	c.mu.Unlock()
}

func (c *Cache) cached(id, fingerprint string) *Index {
	c.mu.RLock()
	idx, ok := c.mem[id]
	c.mu.RUnlock()
	if ok && c.fresh(idx, fingerprint) {
		return idx
	}
	return nil
}

func (c *Cache) fresh(idx *Index, fingerprint string) bool {
	return !c.staleCheck || fingerprint == "" || idx.Fingerprint == fingerprint
}

func (c *Cache) loadOrBuild(ctx context.Context, id, fingerprint string, build BuildFunc) (resolved, error) {
	r, err := c.flight(ctx, id, fingerprint, build)
	if c.settled != nil {
		c.settled(id, r.idx, err)
	}
	return r, err
}

func (c *Cache) flight(ctx context.Context, id, fingerprint string, build BuildFunc) (resolved, error) {
	// A caller that lost the race to the previous flight finds its result here.
	if idx := c.cached(id, fingerprint); idx != nil {
		return resolved{idx: idx, outcome: OutcomeMemory}, nil
	}

	idx, err := c.store.Load(ctx, id)
	switch {
	case err == nil && c.fresh(idx, fingerprint):
		c.remember(id, idx)
		c.logger.Debug("index loaded from store", "id", id, "chunks", idx.Len())
		return resolved{idx: idx, outcome: OutcomeStore}, nil
	case err == nil:
		c.logger.Info("persisted index is stale, rebuilding", "id", id)
	case errors.Is(err, rag.ErrIndexNotFound):
	default:
		c.logger.Warn("persisted index unreadable, rebuilding", "id", id, "error", err)
	}

	idx, err = build(ctx)
	if err != nil {
		return resolved{}, err
	}
	if err := c.store.Persist(ctx, idx); err != nil {
		return resolved{}, err
	}
	c.remember(id, idx)
	c.logger.Info("index built", "id", id, "chunks", idx.Len(), "dimension", idx.Dimension)
	return resolved{idx: idx, outcome: OutcomeBuilt}, nil
}

func (c *Cache) remember(id string, idx *Index) {
	c.mu.Lock()
	c.mem[id] = idx
	c.mu.Unlock()
}
