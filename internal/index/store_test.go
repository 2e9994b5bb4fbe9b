package index

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

func sampleIndex(id string) *Index {
	return &Index{
		ID:           id,
		Fingerprint:  "abc123",
		Dimension:    3,
		ChunkSize:    100,
		ChunkOverlap: 10,
		Chunks:       chunksOf("first chunk", "second chunk"),
		Vectors:      [][]float32{{0.1, 0.2, 0.3}, {-1, 0, 1.5}},
		BuiltAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// storeContract exercises the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)

	want := sampleIndex("report.pdf")
	require.NoError(t, s.Persist(ctx, want))

	got, err := s.Load(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	assert.Equal(t, want.Dimension, got.Dimension)
	assert.Equal(t, want.ChunkSize, got.ChunkSize)
	assert.Equal(t, want.ChunkOverlap, got.ChunkOverlap)
	assert.Equal(t, want.Chunks, got.Chunks)
	assert.Equal(t, want.Vectors, got.Vectors)
	assert.True(t, want.BuiltAt.Equal(got.BuiltAt))

	// Replacing drops chunks that no longer exist.
	replacement := sampleIndex("report.pdf")
	replacement.Fingerprint = "def456"
	replacement.Chunks = replacement.Chunks[:1]
	replacement.Vectors = replacement.Vectors[:1]
	require.NoError(t, s.Persist(ctx, replacement))

	got, err = s.Load(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "def456", got.Fingerprint)
	assert.Len(t, got.Chunks, 1)

	assert.Error(t, s.Persist(ctx, &Index{ID: "bad", Chunks: chunksOf("x")}))
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Persist(context.Background(), sampleIndex("a/b c.txt")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storageKey("a/b c.txt")+".idx", entries[0].Name())
}

func TestFileStore_SimilarIdentifiersDoNotCollide(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Persist(ctx, sampleIndex("a_b.txt")))

	_, err = s.Load(ctx, "a b.txt")
	require.ErrorIs(t, err, rag.ErrIndexNotFound)

	other := sampleIndex("a b.txt")
	other.Fingerprint = "penguins"
	require.NoError(t, s.Persist(ctx, other))

	got, err := s.Load(ctx, "a_b.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Fingerprint)
	got, err = s.Load(ctx, "a b.txt")
	require.NoError(t, err)
	assert.Equal(t, "penguins", got.Fingerprint)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileStore_ForeignIndexIsNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	// An artifact copied under another document's name is not served.
	require.NoError(t, s.Persist(ctx, sampleIndex("a_b.txt")))
	require.NoError(t, os.Rename(s.path("a_b.txt"), s.path("report.pdf")))

	_, err = s.Load(ctx, "report.pdf")
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)
}

func TestFileStore_CorruptFileIsReadError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.path("x.txt"), []byte("garbage"), 0o600))
	_, err = s.Load(context.Background(), "x.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, rag.ErrIndexNotFound, "undecodable files surface as read errors")
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("")
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"my file.txt", "my_file.txt"},
		{"web-0011aabb", "web-0011aabb"},
		{"ünï.csv", "_n_.csv"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeName(tt.in), tt.in)
	}
}

func TestStorageKey(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, storageKey("a b.txt"), storageKey("a_b.txt"))
	assert.Equal(t, storageKey("report.pdf"), storageKey("report.pdf"))
	assert.Regexp(t, `^report\.pdf-[0-9a-f]{8}$`, storageKey("report.pdf"))
}

func TestVectorCodec(t *testing.T) {
	t.Parallel()

	v := []float32{0, -1.25, 3.5e10}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
