// Package vectorstore defines the persistent similarity index the chatbot retrieves from.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
)

var (
	// ErrNotFound is returned by Provider.Open when no index has been built yet.
	ErrNotFound = errors.New("vector index not found")
	// ErrIncompatible is returned when an index was built with a different embedder.
	ErrIncompatible = errors.New("vector index incompatible with embedder")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Info describes how an index was built.
type Info struct {
	Embedder  string `json:"embedder"`
	Dimension int    `json:"dimension"`
}

// Entry is one stored chunk with its embedding.
type Entry struct {
	Vector []float32      `json:"vector"`
	Chunk  document.Chunk `json:"chunk"`
}

// Result is a chunk returned by Search with its cosine similarity.
type Result struct {
	Chunk document.Chunk
	Score float64
}

// Index is an append-only similarity index.
type Index interface {
	Info() Info
	// Add appends entries; nothing is deduplicated here.
	Add(ctx context.Context, entries []Entry) error
	// Search returns up to k entries ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	// Hashes returns the fingerprints of every stored chunk.
	Hashes(ctx context.Context) (map[string]struct{}, error)
	// Save makes prior Adds durable.
	Save(ctx context.Context) error
}

// Provider creates or opens the single index it manages.
type Provider interface {
	// Create starts a fresh index, replacing any existing one once saved.
	Create(ctx context.Context, info Info) (Index, error)
	// Open loads the existing index or returns ErrNotFound.
	Open(ctx context.Context) (Index, error)
}

// CheckCompatible verifies that vectors from embedder can be compared with those in idx.
func CheckCompatible(info Info, embedder string, dimension int) error {
	if info.Embedder != embedder {
		return fmt.Errorf("%w: index built with %q, embedder is %q", ErrIncompatible, info.Embedder, embedder)
	}
	if dimension > 0 && info.Dimension > 0 && info.Dimension != dimension {
		return fmt.Errorf("%w: index dimension %d, embedder dimension %d", ErrIncompatible, info.Dimension, dimension)
	}
	return nil
}

// CheckVectors ensures every entry has the expected dimension.
func CheckVectors(entries []Entry, dimension int) error {
	for i, e := range entries {
		if len(e.Vector) != dimension {
			return fmt.Errorf("%w: entry %d has %d, index expects %d", ErrDimensionMismatch, i, len(e.Vector), dimension)
		}
	}
	return nil
}
