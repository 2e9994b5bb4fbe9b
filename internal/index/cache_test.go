package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag/ragtest"
)

func builder(emb *ragtest.Embedder, id, fingerprint string, texts ...string) BuildFunc {
	return func(ctx context.Context) (*Index, error) {
		return Build(ctx, emb, BuildParams{ID: id, Fingerprint: fingerprint}, chunksOf(texts...))
	}
}

func TestCache_SecondResolveDoesNotEmbed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	emb := &ragtest.Embedder{}
	first := NewCache(store, true, nil)
	idx, outcome, err := first.Resolve(ctx, "doc.txt", "fp1", builder(emb, "doc.txt", "fp1", "alpha", "beta", "gamma"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBuilt, outcome)
	assert.Equal(t, 3, idx.Len())
	calls := emb.Calls()
	require.Positive(t, calls)

	_, outcome, err = first.Resolve(ctx, "doc.txt", "fp1", builder(emb, "doc.txt", "fp1", "alpha", "beta", "gamma"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMemory, outcome)

	// A fresh process reuses the persisted artifact.
	second := NewCache(store, true, nil)
	again, outcome, err := second.Resolve(ctx, "doc.txt", "fp1", builder(emb, "doc.txt", "fp1", "alpha", "beta", "gamma"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStore, outcome)
	assert.Equal(t, calls, emb.Calls(), "second resolve must not call the embedder")
	assert.Equal(t, idx.Vectors, again.Vectors)
}

func TestCache_ConcurrentColdResolvesBuildOnce(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := NewCache(store, true, nil)
	emb := &ragtest.Embedder{Delay: 50 * time.Millisecond}

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Index, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = cache.Resolve(context.Background(), "doc.txt", "fp",
				builder(emb, "doc.txt", "fp", "one", "two"))
		}(i)
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, emb.Calls(), "exactly one embedding pass for concurrent cold resolves")
}

func TestCache_StaleFingerprintRebuilds(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := NewCache(store, true, nil)
	emb := &ragtest.Embedder{}
	ctx := context.Background()

	_, _, err = cache.Resolve(ctx, "doc.txt", "v1", builder(emb, "doc.txt", "v1", "old text"))
	require.NoError(t, err)

	idx, outcome, err := cache.Resolve(ctx, "doc.txt", "v2", builder(emb, "doc.txt", "v2", "new text", "more"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBuilt, outcome)
	assert.Equal(t, "v2", idx.Fingerprint)

	persisted, err := store.Load(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", persisted.Fingerprint)
}

func TestCache_StaleCheckDisabledReusesByName(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := NewCache(store, false, nil)
	emb := &ragtest.Embedder{}
	ctx := context.Background()

	_, _, err = cache.Resolve(ctx, "doc.txt", "v1", builder(emb, "doc.txt", "v1", "old text"))
	require.NoError(t, err)
	calls := emb.Calls()

	idx, outcome, err := cache.Resolve(ctx, "doc.txt", "v2", builder(emb, "doc.txt", "v2", "new text"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMemory, outcome)
	assert.Equal(t, "v1", idx.Fingerprint)
	assert.Equal(t, calls, emb.Calls())
}

func TestCache_JoinedStaleFlightIsResolvedAgain(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := NewCache(store, true, nil)
	emb := &ragtest.Embedder{}
	ctx := context.Background()

	started, release := make(chan struct{}), make(chan struct{})
	slowOld := func(ctx context.Context) (*Index, error) {
		close(started)
		<-release
		return builder(emb, "doc.txt", "v1", "old text")(ctx)
	}

	oldDone := make(chan *Index, 1)
	go func() {
		idx, _, _ := cache.Resolve(ctx, "doc.txt", "v1", slowOld)
		oldDone <- idx
	}()
	<-started

	newDone := make(chan *Index, 1)
	go func() {
		idx, _, err := cache.Resolve(ctx, "doc.txt", "v2", builder(emb, "doc.txt", "v2", "new text"))
		assert.NoError(t, err)
		newDone <- idx
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, "v1", (<-oldDone).Fingerprint)
	got := <-newDone
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Fingerprint)
}

func TestCache_BuildFailureIsNotCached(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := NewCache(store, true, nil)
	ctx := context.Background()

	boom := errors.New("provider down")
	_, _, err = cache.Resolve(ctx, "doc.txt", "fp", builder(&ragtest.Embedder{Err: boom}, "doc.txt", "fp", "x"))
	require.ErrorIs(t, err, boom)

	_, ok := cache.Get("doc.txt")
	assert.False(t, ok)

	_, outcome, err := cache.Resolve(ctx, "doc.txt", "fp", builder(&ragtest.Embedder{}, "doc.txt", "fp", "x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBuilt, outcome)
}

func TestCache_CallerCancellationDoesNotAbortBuild(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	cache := NewCache(store, true, nil)
	emb := &ragtest.Embedder{Delay: 100 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = cache.Resolve(ctx, "doc.txt", "fp", builder(emb, "doc.txt", "fp", "x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached build still completes and is shared with the next caller.
	idx, _, err := cache.Resolve(context.Background(), "doc.txt", "fp", builder(emb, "doc.txt", "fp", "x"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, emb.Calls())
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "memory", OutcomeMemory.String())
	assert.Equal(t, "store", OutcomeStore.String())
	assert.Equal(t, "built", OutcomeBuilt.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
