package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-rag-chatbot/internal/chunker"
	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding"
	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding/hashing"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore/local"
)

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

type fixture struct {
	dir      string
	provider *local.Provider
	embedder *hashing.Embedder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vectorstore")
	provider, err := local.NewProvider(dir)
	require.NoError(t, err)
	embedder, err := hashing.New(32)
	require.NoError(t, err)
	return fixture{dir: dir, provider: provider, embedder: embedder}
}

func (f fixture) builder(t *testing.T, size, overlap int, opts Options) *Builder {
	t.Helper()
	splitter, err := chunker.New(size, overlap)
	require.NoError(t, err)
	b, err := New(f.provider, f.embedder, splitter, opts, nil)
	require.NoError(t, err)
	return b
}

func pages() []document.Document {
	return []document.Document{
		{Kind: document.KindPage, Source: "https://campus.example.edu/admissions", Title: "Admissions",
			Content: strings.Repeat("Admissions open in May for undergraduate programmes. ", 10)},
		{Kind: document.KindPage, Source: "https://campus.example.edu/hostel", Title: "Hostel",
			Content: "Hostel rooms are allotted on a first come basis."},
	}
}

func TestBuildWritesIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var progress [][2]int
	b := f.builder(t, 120, 20, Options{BatchSize: 2, OnProgress: func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}})

	stats, err := b.Build(context.Background(), pages())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Greater(t, stats.Chunks, 2)
	assert.Equal(t, stats.Chunks, stats.Added)
	assert.Equal(t, stats.Chunks, stats.Total)
	require.NotEmpty(t, progress)
	assert.Equal(t, [2]int{stats.Chunks, stats.Chunks}, progress[len(progress)-1])

	idx, err := f.provider.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Info{Embedder: "hashing-32", Dimension: 32}, idx.Info())
}

func TestBuildRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	b := f.builder(t, 800, 150, Options{})

	_, err := b.Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)

	stats, err := b.Build(context.Background(), []document.Document{{Kind: document.KindText, Source: "blank.txt", Content: "  \n "}})
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Zero(t, stats.Chunks)

	_, statErr := os.Stat(f.dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildEmbeddingFailureLeavesNoIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	splitter, err := chunker.New(800, 150)
	require.NoError(t, err)
	b, err := New(f.provider, failingEmbedder{f.embedder}, splitter, Options{}, nil)
	require.NoError(t, err)

	_, err = b.Build(context.Background(), pages())
	require.ErrorContains(t, err, "embedding service down")
	_, err = f.provider.Open(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestUpdateAppends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	built, err := f.builder(t, 120, 20, Options{}).Build(ctx, pages())
	require.NoError(t, err)

	brochure := []document.Document{{Kind: document.KindPDF, Source: "brochure.pdf", Page: 1, Content: "Fee structure for 2025."}}
	updated, err := f.builder(t, 1000, 150, Options{}).Update(ctx, brochure)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Added)
	assert.Equal(t, built.Total+1, updated.Total)

	again, err := f.builder(t, 1000, 150, Options{}).Update(ctx, brochure)
	require.NoError(t, err)
	assert.Equal(t, built.Total+2, again.Total, "append-only without dedup")
}

func TestUpdateDedup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	built, err := f.builder(t, 120, 20, Options{Dedup: true}).Build(ctx, pages())
	require.NoError(t, err)

	stats, err := f.builder(t, 120, 20, Options{Dedup: true}).Update(ctx, pages())
	require.NoError(t, err)
	assert.Zero(t, stats.Added)
	assert.Equal(t, stats.Chunks, stats.Skipped)
	assert.Equal(t, built.Total, stats.Total)
}

func TestBuildDedupWithinInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dup := document.Document{Kind: document.KindText, Source: "faq.txt", Content: "Library opens at 9."}
	stats, err := f.builder(t, 800, 150, Options{Dedup: true}).Build(context.Background(), []document.Document{dup, dup})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Total)
}

func TestUpdateMissingIndexCreatesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.builder(t, 1000, 150, Options{}).Update(context.Background(), pages())
	require.ErrorIs(t, err, vectorstore.ErrNotFound)
	_, statErr := os.Stat(f.dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdateRejectsIncompatibleIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.builder(t, 800, 150, Options{}).Build(ctx, pages())
	require.NoError(t, err)

	other, err := hashing.New(16)
	require.NoError(t, err)
	splitter, err := chunker.New(1000, 150)
	require.NoError(t, err)
	b, err := New(f.provider, other, splitter, Options{}, nil)
	require.NoError(t, err)

	_, err = b.Update(ctx, pages())
	assert.ErrorIs(t, err, vectorstore.ErrIncompatible)
}

func TestUpdateRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.builder(t, 800, 150, Options{}).Build(ctx, pages())
	require.NoError(t, err)

	_, err = f.builder(t, 1000, 150, Options{}).Update(ctx, nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	splitter, err := chunker.New(10, 0)
	require.NoError(t, err)

	_, err = New(nil, f.embedder, splitter, Options{}, nil)
	assert.Error(t, err)
	_, err = New(f.provider, nil, splitter, Options{}, nil)
	assert.Error(t, err)
	_, err = New(f.provider, f.embedder, nil, Options{}, nil)
	assert.Error(t, err)
}
