// Package document defines the units that flow from the corpus into the vector index.
package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/campus-rag-chatbot/internal/hash/sha256"
)

// Kind identifies where a Document came from.
type Kind string

const (
	// KindPage is extracted text of a crawled web page.
	KindPage Kind = "page"
	// KindText is a plain text file.
	KindText Kind = "text"
	// KindPDF is one page of a PDF.
	KindPDF Kind = "pdf"
	// KindSlides is one slide of a PowerPoint deck.
	KindSlides Kind = "slides"
)

var (
	// ErrMissingSource is returned when a document has no source.
	ErrMissingSource = errors.New("document source is required")
	// ErrUnknownKind is returned for a Kind outside the known set.
	ErrUnknownKind = errors.New("unknown document kind")
)

// Document is a loaded text unit with its provenance.
type Document struct {
	Kind    Kind
	Content string
	// Source is a page URL or a file path.
	Source string
	Title  string
	// Page is the 1-based page or slide number, zero when not applicable.
	Page int
}

// New builds a validated Document.
func New(kind Kind, source, title, content string) (Document, error) {
	doc := Document{
		Kind:    kind,
		Content: content,
		Source:  strings.TrimSpace(source),
		Title:   strings.TrimSpace(title),
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks the invariants every Document must satisfy.
func (d Document) Validate() error {
	switch d.Kind {
	case KindPage, KindText, KindPDF, KindSlides:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	if strings.TrimSpace(d.Source) == "" {
		return ErrMissingSource
	}
	if d.Page < 0 {
		return fmt.Errorf("page must not be negative, got %d", d.Page)
	}
	return nil
}

// Metadata is the provenance carried by every chunk.
type Metadata struct {
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
	Page   int    `json:"page,omitempty"`
}

// Metadata returns the provenance chunks of d inherit.
func (d Document) Metadata() Metadata {
	return Metadata{Source: d.Source, Title: d.Title, Page: d.Page}
}

// Chunk is a bounded span of a Document's content.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	// Start and End are rune offsets into the parent content.
	Start int    `json:"start"`
	End   int    `json:"end"`
	Hash  string `json:"hash"`
}

// NewChunk builds a Chunk and computes its fingerprint.
func NewChunk(content string, meta Metadata, start, end int) Chunk {
	return Chunk{
		Content:  content,
		Metadata: meta,
		Start:    start,
		End:      end,
		Hash:     Fingerprint(meta.Source, content),
	}
}

// Fingerprint is the dedup key for a chunk of content from source.
func Fingerprint(source, content string) string {
	return sha256.Fingerprint(source, content)
}
