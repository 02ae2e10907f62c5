package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
)

func entry(source, content string, v ...float32) vectorstore.Entry {
	return vectorstore.Entry{
		Vector: v,
		Chunk:  document.NewChunk(content, document.Metadata{Source: source}, 0, len(content)),
	}
}

func TestCreateSaveOpenRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectorstore")
	p, err := NewProvider(dir)
	require.NoError(t, err)

	idx, err := p.Create(ctx, vectorstore.Info{Embedder: "hashing-3", Dimension: 3})
	require.NoError(t, err)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "create must not touch disk before save")

	require.NoError(t, idx.Add(ctx, []vectorstore.Entry{
		entry("a", "admissions", 1, 0, 0),
		entry("b", "hostel", 0, 1, 0),
	}))
	require.NoError(t, idx.Save(ctx))

	reopened, err := p.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Info{Embedder: "hashing-3", Dimension: 3}, reopened.Info())
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := reopened.Search(ctx, []float32{0, 2, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "hostel", res[0].Chunk.Content)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be cleaned up")
	assert.Equal(t, IndexFile, entries[0].Name())
}

func TestOpenMissingCreatesNothing(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "absent")
	p, err := NewProvider(dir)
	require.NoError(t, err)

	_, err = p.Open(context.Background())
	require.ErrorIs(t, err, vectorstore.ErrNotFound)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte("{not json"), 0o600))
	p, err := NewProvider(dir)
	require.NoError(t, err)
	_, err = p.Open(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestSearchOrdersByScoreAndKeepsTies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := NewProvider(t.TempDir())
	require.NoError(t, err)
	idx, err := p.Create(ctx, vectorstore.Info{Embedder: "e", Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []vectorstore.Entry{
		entry("far", "far", -1, 0),
		entry("tie1", "tie1", 1, 1),
		entry("best", "best", 1, 0),
		entry("tie2", "tie2", 1, 1),
		entry("zero", "zero", 0, 0),
	}))

	res, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	var order []string
	for _, r := range res {
		order = append(order, r.Chunk.Metadata.Source)
	}
	assert.Equal(t, []string{"best", "tie1", "tie2", "zero", "far"}, order)

	none, err := idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = idx.Search(ctx, []float32{1}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := NewProvider(t.TempDir())
	require.NoError(t, err)
	idx, err := p.Create(ctx, vectorstore.Info{Embedder: "e", Dimension: 2})
	require.NoError(t, err)
	err = idx.Add(ctx, []vectorstore.Entry{entry("a", "a", 1, 2, 3)})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateReplacesExistingOnSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := NewProvider(t.TempDir())
	require.NoError(t, err)

	first, err := p.Create(ctx, vectorstore.Info{Embedder: "e", Dimension: 1})
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, []vectorstore.Entry{entry("a", "a", 1), entry("b", "b", 1)}))
	require.NoError(t, first.Save(ctx))

	second, err := p.Create(ctx, vectorstore.Info{Embedder: "e", Dimension: 1})
	require.NoError(t, err)
	require.NoError(t, second.Add(ctx, []vectorstore.Entry{entry("c", "c", 1)}))
	require.NoError(t, second.Save(ctx))

	reopened, err := p.Open(ctx)
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hashes, err := reopened.Hashes(ctx)
	require.NoError(t, err)
	assert.Contains(t, hashes, document.Fingerprint("c", "c"))
}

func TestCreateRejectsZeroDimension(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(t.TempDir())
	require.NoError(t, err)
	_, err = p.Create(context.Background(), vectorstore.Info{Embedder: "e"})
	assert.Error(t, err)

	_, err = NewProvider("")
	assert.Error(t, err)
}
