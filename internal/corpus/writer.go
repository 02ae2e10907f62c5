package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/crawler"
	"github.com/JakeFAU/campus-rag-chatbot/internal/storage"
)

// Writer implements crawler.Sink on top of a BlobStore.
type Writer struct {
	store  storage.BlobStore
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	pages []crawler.PageRecord
}

var _ crawler.Sink = (*Writer)(nil)

// NewWriter returns a Writer persisting into store.
func NewWriter(store storage.BlobStore, cfg Config, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, cfg: cfg.withDefaults(), logger: logger}
}

// SavePage writes page_N.txt immediately so an interrupted crawl keeps what it fetched.
func (w *Writer) SavePage(ctx context.Context, page crawler.PageRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A page joins the aggregates only once its file is written.
	name := fmt.Sprintf("page_%d.txt", len(w.pages)+1)
	body := fmt.Sprintf("URL: %s\nTitle: %s\n\n%s\n", page.URL, page.Title, page.Text)
	if _, err := w.store.PutObject(ctx, name, "text/plain; charset=utf-8", strings.NewReader(body)); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	w.pages = append(w.pages, page)
	w.logger.Debug("saved page", zap.String("file", name), zap.String("url", page.URL))
	return nil
}

// SaveDocument stores a downloaded binary verbatim.
func (w *Writer) SaveDocument(ctx context.Context, name string, contentType string, body []byte) error {
	if _, err := w.store.PutObject(ctx, name, contentType, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("save document %s: %w", name, err)
	}
	w.logger.Info("downloaded document", zap.String("file", name), zap.Int("bytes", len(body)))
	return nil
}

// Finish writes all_data.json, the text dump and the URL list.
func (w *Writer) Finish(ctx context.Context, result crawler.Result) error {
	w.mu.Lock()
	pages := append([]crawler.PageRecord(nil), w.pages...)
	w.mu.Unlock()

	if pages == nil {
		pages = []crawler.PageRecord{}
	}
	var js bytes.Buffer
	enc := json.NewEncoder(&js)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pages); err != nil {
		return fmt.Errorf("encode %s: %w", AllDataFile, err)
	}
	if _, err := w.store.PutObject(ctx, AllDataFile, "application/json", &js); err != nil {
		return fmt.Errorf("save %s: %w", AllDataFile, err)
	}

	if _, err := w.store.PutObject(ctx, w.cfg.DumpFile, "text/plain; charset=utf-8", strings.NewReader(Dump(pages))); err != nil {
		return fmt.Errorf("save %s: %w", w.cfg.DumpFile, err)
	}

	var urls strings.Builder
	for _, u := range result.Discovered {
		urls.WriteString(u)
		urls.WriteByte('\n')
	}
	if _, err := w.store.PutObject(ctx, w.cfg.URLListFile, "text/plain; charset=utf-8", strings.NewReader(urls.String())); err != nil {
		return fmt.Errorf("save %s: %w", w.cfg.URLListFile, err)
	}

	w.logger.Info("corpus written",
		zap.Int("pages", len(pages)),
		zap.Int("discovered", len(result.Discovered)),
		zap.String("dump_file", w.cfg.DumpFile),
	)
	return nil
}

// Dump renders pages in the human-readable concatenated format.
func Dump(pages []crawler.PageRecord) string {
	rule := strings.Repeat("=", 100)
	thin := strings.Repeat("-", 100)
	var b strings.Builder
	for i, p := range pages {
		fmt.Fprintf(&b, "%s\nPAGE %d: %s\nTITLE: %s\n%s\n%s\n\n", rule, i+1, p.URL, p.Title, thin, p.Text)
	}
	return b.String()
}
