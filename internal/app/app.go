// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/api"
	"github.com/JakeFAU/campus-rag-chatbot/internal/chunker"
	"github.com/JakeFAU/campus-rag-chatbot/internal/config"
	"github.com/JakeFAU/campus-rag-chatbot/internal/corpus"
	"github.com/JakeFAU/campus-rag-chatbot/internal/crawler"
	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding"
	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding/hashing"
	"github.com/JakeFAU/campus-rag-chatbot/internal/embedding/openai"
	collyfetcher "github.com/JakeFAU/campus-rag-chatbot/internal/fetcher/colly"
	"github.com/JakeFAU/campus-rag-chatbot/internal/indexer"
	"github.com/JakeFAU/campus-rag-chatbot/internal/llm"
	"github.com/JakeFAU/campus-rag-chatbot/internal/policy/ratelimit"
	"github.com/JakeFAU/campus-rag-chatbot/internal/rag"
	"github.com/JakeFAU/campus-rag-chatbot/internal/storage/local"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
	localstore "github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore/local"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore/postgres"
)

// Mode selects which chunk sizes a Builder uses.
type Mode int

const (
	// ModeBuild rebuilds the whole index from the raw corpus.
	ModeBuild Mode = iota
	// ModeUpdate appends a single document to an existing index.
	ModeUpdate
)

// App holds all the shared, long-lived services for the application.
// Collaborators are built on demand so each subcommand only pays for what it uses.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	mu       sync.Mutex
	embedder embedding.Embedder
	provider vectorstore.Provider
	closers  []func()
}

// New creates an App from validated configuration.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// CrawlEngine wires the fetcher, robots policy, pacer and corpus writer into an engine.
func (a *App) CrawlEngine() (*crawler.Engine, error) {
	cc := a.cfg.Crawler
	store, err := local.New(local.Config{BaseDir: a.cfg.Corpus.RawDir})
	if err != nil {
		return nil, fmt.Errorf("init raw store: %w", err)
	}
	logger := a.logger.Named("crawler")

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cc.UserAgent,
		Timeout:            cc.RequestTimeout,
		MaxBodyBytes:       cc.MaxBodyBytes,
		InsecureSkipVerify: cc.InsecureSkipVerify,
		Retry:              crawler.NewRetryPolicy(cc.MaxRetries, cc.BackoffInitial, cc.BackoffMax),
		Logger:             logger,
	})
	robots := crawler.NewRobotsEnforcer(cc.RespectRobots, cc.UserAgent, &http.Client{Timeout: cc.RequestTimeout}, logger)
	sink := corpus.NewWriter(store, a.corpusConfig(), logger)

	engine, err := crawler.NewEngine(crawler.Config{
		StartURL:           cc.StartURL,
		AllowedDomains:     cc.AllowedDomains,
		PriorityURLs:       cc.PriorityPaths,
		UseSitemap:         cc.UseSitemap,
		MaxPages:           cc.MaxPages,
		MaxDepth:           cc.MaxDepth,
		DownloadDocuments:  cc.DownloadDocuments,
		DocumentExtensions: cc.DocumentExtensions,
	}, crawler.Deps{
		Fetcher: fetcher,
		Robots:  robots,
		Pacer:   ratelimit.NewPacer(cc.Delay),
		Sink:    sink,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init crawl engine: %w", err)
	}
	return engine, nil
}

// CorpusLoader returns a loader over the raw corpus directory, which must exist.
func (a *App) CorpusLoader() (*corpus.Loader, error) {
	store, err := local.Open(local.Config{BaseDir: a.cfg.Corpus.RawDir})
	if err != nil {
		return nil, fmt.Errorf("open raw corpus: %w", err)
	}
	return corpus.NewLoader(store, a.corpusConfig(), a.logger.Named("corpus")), nil
}

func (a *App) corpusConfig() corpus.Config {
	return corpus.Config{DumpFile: a.cfg.Corpus.DumpFile, URLListFile: a.cfg.Corpus.URLListFile}
}

// Embedder returns the configured embedder, building it once.
func (a *App) Embedder() (embedding.Embedder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.embedder != nil {
		return a.embedder, nil
	}
	ec := a.cfg.Embedding
	var (
		e   embedding.Embedder
		err error
	)
	switch ec.Provider {
	case "openai":
		e, err = openai.New(openai.Config{
			BaseURL:   ec.BaseURL,
			APIKeyEnv: ec.APIKeyEnv,
			Model:     ec.Model,
			Timeout:   a.cfg.LLM.Timeout,
		})
	case "hashing":
		e, err = hashing.New(ec.Dimension)
	default:
		err = fmt.Errorf("unknown embedding provider: %s", ec.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	a.logger.Info("embedder ready", zap.String("embedder", e.Name()))
	a.embedder = e
	return e, nil
}

// VectorStore returns the configured index provider, building it once.
func (a *App) VectorStore(ctx context.Context) (vectorstore.Provider, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.provider != nil {
		return a.provider, nil
	}
	vc := a.cfg.VectorStore
	switch vc.Backend {
	case "local":
		p, err := localstore.NewProvider(vc.Dir)
		if err != nil {
			return nil, fmt.Errorf("init vector store: %w", err)
		}
		a.provider = p
	case "postgres":
		p, err := postgres.NewProvider(ctx, postgres.Config{
			DSN:      vc.Postgres.DSN,
			Table:    vc.Postgres.Table,
			MaxConns: vc.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init vector store: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		a.provider = p
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", vc.Backend)
	}
	a.logger.Info("vector store ready", zap.String("backend", vc.Backend))
	return a.provider, nil
}

// Builder returns an index builder using the chunk sizes for mode.
func (a *App) Builder(ctx context.Context, mode Mode, onProgress func(done, total int)) (*indexer.Builder, error) {
	size, overlap := a.cfg.Chunking.Size, a.cfg.Chunking.Overlap
	if mode == ModeUpdate {
		size, overlap = a.cfg.Chunking.UpdateSize, a.cfg.Chunking.UpdateOverlap
	}
	splitter, err := chunker.New(size, overlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	embedder, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	provider, err := a.VectorStore(ctx)
	if err != nil {
		return nil, err
	}
	builder, err := indexer.New(provider, embedder, splitter, indexer.Options{
		BatchSize:  a.cfg.Embedding.BatchSize,
		Dedup:      a.cfg.Index.Dedup,
		OnProgress: onProgress,
	}, a.logger.Named("indexer"))
	if err != nil {
		return nil, fmt.Errorf("init index builder: %w", err)
	}
	return builder, nil
}

// Generator returns the language model client.
func (a *App) Generator() (*llm.Client, error) {
	lc := a.cfg.LLM
	client, err := llm.New(llm.Config{
		BaseURL:     lc.BaseURL,
		APIKeyEnv:   lc.APIKeyEnv,
		Model:       lc.Model,
		Temperature: lc.Temperature,
		Timeout:     lc.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	return client, nil
}

// QueryService opens the existing index and wires the retrieval service over it.
func (a *App) QueryService(ctx context.Context, generator llm.Generator) (*rag.Service, error) {
	embedder, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	provider, err := a.VectorStore(ctx)
	if err != nil {
		return nil, err
	}
	index, err := provider.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	svc, err := rag.New(embedder, index, generator, rag.Config{
		TopK:       a.cfg.Retrieval.TopK,
		MaxSources: a.cfg.Retrieval.MaxSources,
		Assistant: rag.Assistant{
			Name:  a.cfg.Assistant.Name,
			Email: a.cfg.Assistant.FallbackEmail,
			Phone: a.cfg.Assistant.FallbackPhone,
		},
	}, a.logger.Named("rag"))
	if err != nil {
		return nil, fmt.Errorf("init query service: %w", err)
	}
	return svc, nil
}

// HTTPServer builds the http.Server fronting svc.
func (a *App) HTTPServer(svc api.Answerer) *http.Server {
	handler := api.NewServer(svc, a.cfg, a.logger.Named("api")).Handler()
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close releases pooled resources and flushes the logger.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	// Sync fails on some terminals; nothing useful can be done with that error.
	_ = a.logger.Sync()
}
