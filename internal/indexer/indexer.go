// Package indexer chunks documents, embeds them and writes them to the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding"
	"github.com/JakeFAU/campus-rag-chatbot/internal/metrics"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
)

// ErrNoDocuments is returned when there is nothing to index.
var ErrNoDocuments = errors.New("no documents to index")

// Splitter turns documents into chunks.
type Splitter interface {
	Split(docs []document.Document) []document.Chunk
}

// Options tune a Builder.
type Options struct {
	BatchSize int
	// Dedup skips chunks whose fingerprint is already indexed or seen earlier in the same call.
	Dedup bool
	// OnProgress is called after each embedding batch with chunks embedded so far and the total.
	OnProgress func(done, total int)
}

// Stats summarizes one Build or Update.
type Stats struct {
	Documents int
	Chunks    int
	Added     int
	Skipped   int
	// Total is the index size afterwards.
	Total int
}

// Builder creates and extends the vector index.
type Builder struct {
	provider vectorstore.Provider
	embedder embedding.Embedder
	splitter Splitter
	opts     Options
	logger   *zap.Logger
}

// New returns a Builder.
func New(provider vectorstore.Provider, embedder embedding.Embedder, splitter Splitter, opts Options, logger *zap.Logger) (*Builder, error) {
	if provider == nil {
		return nil, fmt.Errorf("vector store provider is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{provider: provider, embedder: embedder, splitter: splitter, opts: opts, logger: logger}, nil
}

// Build replaces the index with one built from docs.
func (b *Builder) Build(ctx context.Context, docs []document.Document) (Stats, error) {
	stats := Stats{Documents: len(docs)}
	chunks := b.splitter.Split(docs)
	stats.Chunks = len(chunks)
	if len(docs) == 0 || len(chunks) == 0 {
		return stats, ErrNoDocuments
	}
	b.logger.Info("building index", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))

	if b.opts.Dedup {
		chunks, stats.Skipped = dedup(chunks, nil)
	}

	entries, err := b.embed(ctx, chunks)
	if err != nil {
		return stats, err
	}
	dim := b.embedder.Dimension()
	if dim == 0 {
		dim = len(entries[0].Vector)
	}

	idx, err := b.provider.Create(ctx, vectorstore.Info{Embedder: b.embedder.Name(), Dimension: dim})
	if err != nil {
		return stats, fmt.Errorf("create index: %w", err)
	}
	if err := b.write(ctx, idx, entries); err != nil {
		return stats, err
	}
	stats.Added = len(entries)
	if stats.Total, err = idx.Count(ctx); err != nil {
		return stats, fmt.Errorf("count index: %w", err)
	}
	b.observe("build", stats)
	b.logger.Info("index built", zap.Int("added", stats.Added), zap.Int("skipped", stats.Skipped), zap.Int("total", stats.Total))
	return stats, nil
}

// Update appends docs to the existing index. A missing index is reported as vectorstore.ErrNotFound.
func (b *Builder) Update(ctx context.Context, docs []document.Document) (Stats, error) {
	stats := Stats{Documents: len(docs)}
	idx, err := b.provider.Open(ctx)
	if err != nil {
		return stats, fmt.Errorf("open index: %w", err)
	}
	if err := vectorstore.CheckCompatible(idx.Info(), b.embedder.Name(), b.embedder.Dimension()); err != nil {
		return stats, err
	}

	chunks := b.splitter.Split(docs)
	stats.Chunks = len(chunks)
	if len(docs) == 0 || len(chunks) == 0 {
		return stats, ErrNoDocuments
	}

	if b.opts.Dedup {
		existing, err := idx.Hashes(ctx)
		if err != nil {
			return stats, fmt.Errorf("load index hashes: %w", err)
		}
		chunks, stats.Skipped = dedup(chunks, existing)
	}

	if len(chunks) > 0 {
		entries, err := b.embed(ctx, chunks)
		if err != nil {
			return stats, err
		}
		if err := b.write(ctx, idx, entries); err != nil {
			return stats, err
		}
		stats.Added = len(entries)
	}
	if stats.Total, err = idx.Count(ctx); err != nil {
		return stats, fmt.Errorf("count index: %w", err)
	}
	b.observe("update", stats)
	b.logger.Info("index updated", zap.Int("added", stats.Added), zap.Int("skipped", stats.Skipped), zap.Int("total", stats.Total))
	return stats, nil
}

func (b *Builder) embed(ctx context.Context, chunks []document.Chunk) ([]vectorstore.Entry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	var progress func(int)
	if b.opts.OnProgress != nil {
		total := len(texts)
		progress = func(done int) { b.opts.OnProgress(done, total) }
	}
	vectors, err := embedding.Batched(ctx, b.embedder, texts, b.opts.BatchSize, progress)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	entries := make([]vectorstore.Entry, len(chunks))
	for i := range chunks {
		entries[i] = vectorstore.Entry{Vector: vectors[i], Chunk: chunks[i]}
	}
	return entries, nil
}

func (b *Builder) write(ctx context.Context, idx vectorstore.Index, entries []vectorstore.Entry) error {
	if err := idx.Add(ctx, entries); err != nil {
		return fmt.Errorf("add to index: %w", err)
	}
	if err := idx.Save(ctx); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

func (b *Builder) observe(operation string, stats Stats) {
	metrics.ObserveIndexChunks(operation, "added", stats.Added)
	metrics.ObserveIndexChunks(operation, "skipped", stats.Skipped)
}

// dedup drops chunks whose hash is in seen or repeats an earlier chunk.
func dedup(chunks []document.Chunk, seen map[string]struct{}) ([]document.Chunk, int) {
	if seen == nil {
		seen = make(map[string]struct{}, len(chunks))
	}
	kept := chunks[:0:0]
	skipped := 0
	for _, c := range chunks {
		if _, dup := seen[c.Hash]; dup {
			skipped++
			continue
		}
		seen[c.Hash] = struct{}{}
		kept = append(kept, c)
	}
	return kept, skipped
}
