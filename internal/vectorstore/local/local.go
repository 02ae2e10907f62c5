// Package local persists the vector index as a single JSON file and searches it by brute force.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
)

// IndexFile is the name of the index file inside the store directory.
const IndexFile = "index.json"

// Provider manages the index stored under Dir.
type Provider struct {
	Dir string
}

var _ vectorstore.Provider = (*Provider)(nil)

// NewProvider returns a Provider rooted at dir.
func NewProvider(dir string) (*Provider, error) {
	if dir == "" {
		return nil, fmt.Errorf("vector store directory is required")
	}
	return &Provider{Dir: dir}, nil
}

// Create returns an empty index. Nothing touches disk until Save.
func (p *Provider) Create(_ context.Context, info vectorstore.Info) (vectorstore.Index, error) {
	if info.Dimension <= 0 {
		return nil, fmt.Errorf("create index: dimension must be positive, got %d", info.Dimension)
	}
	return &Index{dir: p.Dir, info: info}, nil
}

// Open loads the saved index. A missing directory or file yields vectorstore.ErrNotFound.
func (p *Provider) Open(_ context.Context) (vectorstore.Index, error) {
	path := filepath.Join(p.Dir, IndexFile)
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from configuration.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, vectorstore.ErrNotFound)
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	if err := vectorstore.CheckVectors(f.Entries, f.Info.Dimension); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	idx := &Index{dir: p.Dir, info: f.Info, entries: f.Entries}
	idx.norms = make([]float64, len(f.Entries))
	for i, e := range f.Entries {
		idx.norms[i] = norm(e.Vector)
	}
	return idx, nil
}

type indexFile struct {
	Info    vectorstore.Info    `json:"info"`
	Entries []vectorstore.Entry `json:"entries"`
}

// Index is an in-memory flat index backed by index.json.
type Index struct {
	dir string

	mu      sync.RWMutex
	info    vectorstore.Info
	entries []vectorstore.Entry
	norms   []float64
}

var _ vectorstore.Index = (*Index)(nil)

// Info returns the build metadata.
func (x *Index) Info() vectorstore.Info {
	return x.info
}

// Add appends entries after checking their dimension.
func (x *Index) Add(_ context.Context, entries []vectorstore.Entry) error {
	if err := vectorstore.CheckVectors(entries, x.info.Dimension); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		x.entries = append(x.entries, e)
		x.norms = append(x.norms, norm(e.Vector))
	}
	return nil
}

// Search scores every entry by cosine similarity. Ties keep insertion order.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Result, error) {
	if len(vector) != x.info.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", vectorstore.ErrDimensionMismatch, len(vector), x.info.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	qnorm := norm(vector)

	x.mu.RLock()
	defer x.mu.RUnlock()
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(x.entries))
	for i, e := range x.entries {
		scores[i] = scored{idx: i, score: cosine(e.Vector, vector, x.norms[i], qnorm)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	k = min(k, len(scores))
	results := make([]vectorstore.Result, 0, k)
	for _, s := range scores[:k] {
		results = append(results, vectorstore.Result{Chunk: x.entries[s.idx].Chunk, Score: s.score})
	}
	return results, nil
}

// Count returns the number of stored entries.
func (x *Index) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

// Hashes returns the fingerprint set of stored chunks.
func (x *Index) Hashes(_ context.Context) (map[string]struct{}, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string]struct{}, len(x.entries))
	for _, e := range x.entries {
		out[e.Chunk.Hash] = struct{}{}
	}
	return out, nil
}

// Save writes index.json through a temp file and rename so readers never see a partial file.
func (x *Index) Save(_ context.Context) error {
	x.mu.RLock()
	data, err := json.Marshal(indexFile{Info: x.info, Entries: x.entries})
	x.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.MkdirAll(x.dir, 0o750); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(x.dir, IndexFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(x.dir, IndexFile)); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
