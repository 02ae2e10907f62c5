// Package chunker splits documents into overlapping, size-bounded chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
)

// ErrInvalidConfig is returned for a size or overlap that cannot make progress.
var ErrInvalidConfig = errors.New("invalid chunker config")

// separators are tried in order when choosing where a window ends.
var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// Recursive cuts text at the coarsest separator that fits within Size runes.
type Recursive struct {
	size    int
	overlap int
}

// New returns a Recursive splitter. Size must be positive and 0 <= overlap < size.
func New(size, overlap int) (*Recursive, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Recursive{size: size, overlap: overlap}, nil
}

// Size is the maximum chunk length in runes.
func (r *Recursive) Size() int { return r.size }

// Overlap is the number of runes shared by consecutive chunks.
func (r *Recursive) Overlap() int { return r.overlap }

// Split chunks every document, preserving input order. Blank documents produce nothing.
func (r *Recursive) Split(docs []document.Document) []document.Chunk {
	var chunks []document.Chunk
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		text := []rune(doc.Content)
		meta := doc.Metadata()
		for _, s := range r.spans(text) {
			chunks = append(chunks, document.NewChunk(string(text[s.start:s.end]), meta, s.start, s.end))
		}
	}
	return chunks
}

type span struct {
	start int
	end   int
}

func (r *Recursive) spans(text []rune) []span {
	var out []span
	n := len(text)
	start := 0
	for start < n {
		end := start + r.size
		if end >= n {
			end = n
		} else {
			end = r.cut(text, start, end)
		}
		out = append(out, span{start: start, end: end})
		if end >= n {
			break
		}
		start = end - r.overlap
	}
	return out
}

// cut picks the window end in (start+overlap, limit]. Staying past start+overlap keeps the next start moving forward.
func (r *Recursive) cut(text []rune, start, limit int) int {
	lowest := start + r.overlap + 1
	for _, sep := range separators {
		for p := limit; p >= lowest; p-- {
			if p-len(sep) < start {
				break
			}
			if hasSuffixAt(text, p, sep) {
				return p
			}
		}
	}
	return limit
}

func hasSuffixAt(text []rune, p int, sep []rune) bool {
	for i := range sep {
		if text[p-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}
