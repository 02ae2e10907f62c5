package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/crawler"
	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
	"github.com/JakeFAU/campus-rag-chatbot/internal/storage"
)

// Loader turns a raw corpus back into documents.
type Loader struct {
	store  storage.BlobStore
	cfg    Config
	logger *zap.Logger
}

// NewLoader returns a Loader reading from store.
func NewLoader(store storage.BlobStore, cfg Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, cfg: cfg.withDefaults(), logger: logger}
}

// Load prefers all_data.json and falls back to the individual .txt files.
// PDF and PPTX files are loaded either way; unreadable ones are logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]document.Document, error) {
	names, err := l.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	l.logger.Info("loading corpus", zap.Int("files", len(names)))

	hasJSON := false
	for _, name := range names {
		if name == AllDataFile {
			hasJSON = true
			break
		}
	}

	var docs []document.Document
	if hasJSON {
		pageDocs, err := l.loadJSON(ctx)
		if err != nil {
			return nil, err
		}
		docs = append(docs, pageDocs...)
	}

	for _, name := range names {
		ext := strings.ToLower(path.Ext(name))
		switch {
		case ext == ".txt" && !hasJSON && name != l.cfg.DumpFile && name != l.cfg.URLListFile:
			data, err := l.store.GetObject(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			doc, err := ParsePageFile(name, data)
			if err != nil {
				l.logger.Warn("skipping text file", zap.String("file", name), zap.Error(err))
				continue
			}
			docs = append(docs, doc)
		case ext == ".pdf" || ext == ".pptx":
			data, err := l.store.GetObject(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			loaded, err := document.LoadBytes(name, data)
			if err != nil {
				if errors.Is(err, document.ErrInvalidPDF) {
					l.logger.Warn("skipping invalid PDF", zap.String("file", name), zap.Error(err))
				} else {
					l.logger.Warn("failed to read document", zap.String("file", name), zap.Error(err))
				}
				continue
			}
			docs = append(docs, loaded...)
		}
	}

	l.logger.Info("loaded documents", zap.Int("documents", len(docs)), zap.Bool("from_json", hasJSON))
	return docs, nil
}

func (l *Loader) loadJSON(ctx context.Context) ([]document.Document, error) {
	data, err := l.store.GetObject(ctx, AllDataFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AllDataFile, err)
	}
	var pages []crawler.PageRecord
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", AllDataFile, err)
	}
	docs := make([]document.Document, 0, len(pages))
	for i, p := range pages {
		doc, err := document.New(document.KindPage, p.URL, p.Title, p.Text)
		if err != nil {
			l.logger.Warn("skipping page record", zap.Int("index", i), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ParsePageFile reads a page_N.txt file. Files without the URL header become plain text documents.
func ParsePageFile(name string, data []byte) (document.Document, error) {
	text := string(data)
	if !strings.HasPrefix(text, "URL: ") {
		return document.New(document.KindText, name, "", text)
	}
	header, body, _ := strings.Cut(text, "\n\n")
	var pageURL, title string
	for _, line := range strings.Split(header, "\n") {
		switch {
		case strings.HasPrefix(line, "URL: "):
			pageURL = strings.TrimPrefix(line, "URL: ")
		case strings.HasPrefix(line, "Title: "):
			title = strings.TrimPrefix(line, "Title: ")
		}
	}
	if pageURL == "" {
		pageURL = name
	}
	return document.New(document.KindPage, pageURL, title, strings.TrimSuffix(body, "\n"))
}
