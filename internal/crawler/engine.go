package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/hash/sha256"
	"github.com/JakeFAU/campus-rag-chatbot/internal/metrics"
)

// Config captures the crawl-run parameters the engine needs.
type Config struct {
	StartURL       string
	AllowedDomains []string
	// PriorityURLs are absolute URLs or paths resolved against StartURL, fetched first.
	PriorityURLs []string
	UseSitemap   bool
	// SitemapURL defaults to /sitemap.xml on the start host.
	SitemapURL         string
	MaxPages           int
	MaxDepth           int
	DownloadDocuments  bool
	DocumentExtensions []string
}

// Deps bundles the collaborators of an Engine.
type Deps struct {
	Fetcher Fetcher
	Robots  RobotsPolicy
	Pacer   Pacer
	Sink    Sink
	Logger  *zap.Logger
}

// Engine walks a site breadth-first, one fetch at a time.
type Engine struct {
	cfg   Config
	deps  Deps
	start *url.URL
	scope *domainScope

	frontier   *frontier
	discovered map[string]struct{}
	states     map[string]URLState
	stats      Stats
	// origins whose robots.txt lookup has already been paced.
	origins map[string]struct{}
	// docNames holds stored document names taken in this run.
	docNames map[string]struct{}
}

// NewEngine validates cfg and wires the engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if deps.Robots == nil {
		deps.Robots = AllowAll()
	}
	if deps.Pacer == nil {
		deps.Pacer = noPacer{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	startKey, err := NormalizeURL(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("normalize start url: %w", err)
	}
	start, err := url.Parse(startKey)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if cfg.MaxPages <= 0 {
		return nil, errors.New("max pages must be positive")
	}
	if cfg.MaxDepth < 0 {
		return nil, errors.New("max depth must be >= 0")
	}
	scope := newDomainScope(cfg.AllowedDomains)
	if !scope.Contains(start.Hostname()) {
		return nil, fmt.Errorf("start url host %q is outside the allowed domains", start.Hostname())
	}
	return &Engine{
		cfg:   cfg,
		deps:  deps,
		start: start,
		scope: scope,
	}, nil
}

// Run executes one crawl and hands the aggregate result to the sink.
// It stops when the queue drains, the page budget is reached or ctx is canceled.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.frontier = newFrontier()
	e.discovered = make(map[string]struct{})
	e.states = make(map[string]URLState)
	e.stats = Stats{}
	e.origins = make(map[string]struct{})
	e.docNames = make(map[string]struct{})
	logger := e.deps.Logger

	for _, seed := range e.seeds(ctx) {
		e.discover(seed, 0)
	}
	logger.Info("crawl started",
		zap.String("start_url", e.start.String()),
		zap.Int("seeds", e.frontier.len()),
		zap.Int("max_pages", e.cfg.MaxPages),
		zap.Int("max_depth", e.cfg.MaxDepth),
	)

	var runErr error
	for e.stats.Pages < e.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("crawl interrupted: %w", err)
			break
		}
		item, ok := e.frontier.pop()
		if !ok {
			break
		}
		if !e.frontier.markVisited(item.url) {
			continue
		}
		if item.document {
			e.visitDocument(ctx, item)
			continue
		}
		e.visitPage(ctx, item)
	}

	result := e.result()
	logger.Info("crawl finished",
		zap.Int("pages", result.Stats.Pages),
		zap.Int("failed", result.Stats.Failed),
		zap.Int("blocked", result.Stats.Blocked),
		zap.Int("off_domain", result.Stats.OffDomain),
		zap.Int("documents", result.Stats.Documents),
		zap.Int("discovered", len(result.Discovered)),
		zap.Int("pending", e.frontier.len()),
	)
	if err := e.deps.Sink.Finish(context.WithoutCancel(ctx), result); err != nil {
		return result, errors.Join(runErr, fmt.Errorf("finish crawl output: %w", err))
	}
	return result, runErr
}

func (e *Engine) visitPage(ctx context.Context, item frontierItem) {
	logger := e.deps.Logger.With(zap.String("url", item.url), zap.Int("depth", item.depth))

	resp, ok := e.fetch(ctx, item.url, logger)
	if !ok {
		return
	}
	if !IsHTML(resp.ContentType) {
		logger.Info("skipping non-HTML response", zap.String("content_type", resp.ContentType))
		e.finish(item.url, StateVisitedFailure, len(resp.Body))
		return
	}

	base := e.responseBase(item.url, resp)
	if base.String() != item.url {
		if !e.scope.Contains(base.Hostname()) {
			logger.Info("redirected outside allowed domains", zap.String("final_url", base.String()))
			e.finish(item.url, StateVisitedFailure, len(resp.Body))
			return
		}
		if !e.frontier.markVisited(base.String()) {
			logger.Info("redirect target already visited", zap.String("final_url", base.String()))
			e.finish(item.url, StateVisitedFailure, len(resp.Body))
			return
		}
	}

	extraction, err := Extract(resp.Body, base)
	if err != nil {
		logger.Warn("extract page failed", zap.Error(err))
		e.finish(item.url, StateVisitedFailure, len(resp.Body))
		return
	}
	page := PageRecord{
		URL:   item.url,
		Title: extraction.Title,
		Text:  extraction.Text,
	}
	if page.Title == "" {
		page.Title = fallbackTitle(item.url)
	}
	if err := e.deps.Sink.SavePage(ctx, page); err != nil {
		logger.Error("save page failed", zap.Error(err))
		e.finish(item.url, StateVisitedFailure, len(resp.Body))
		return
	}
	e.finish(item.url, StateVisitedSuccess, len(resp.Body))
	logger.Info("page saved",
		zap.Int("page", e.stats.Pages),
		zap.Int("chars", len(page.Text)),
		zap.Int("links", len(extraction.Links)),
	)

	for _, link := range extraction.Links {
		e.discover(link, item.depth+1)
	}
}

func (e *Engine) visitDocument(ctx context.Context, item frontierItem) {
	logger := e.deps.Logger.With(zap.String("url", item.url))
	resp, ok := e.fetch(ctx, item.url, logger)
	if !ok {
		metrics.ObserveDocument("failed")
		return
	}
	name := e.storedDocumentName(item.url)
	if err := e.deps.Sink.SaveDocument(ctx, name, resp.ContentType, resp.Body); err != nil {
		logger.Error("save document failed", zap.String("name", name), zap.Error(err))
		metrics.ObserveDocument("failed")
		e.finish(item.url, StateVisitedFailure, len(resp.Body))
		return
	}
	metrics.ObserveDocument("saved")
	e.finish(item.url, StateDocument, len(resp.Body))
	logger.Info("document downloaded", zap.String("name", name), zap.Int("bytes", len(resp.Body)))
}

// storedDocumentName keeps the URL basename unless another document already
// took it, in which case a short URL digest is prepended. The extension is kept.
func (e *Engine) storedDocumentName(target string) string {
	name, _ := documentName(target, e.cfg.DocumentExtensions)
	if _, taken := e.docNames[name]; taken {
		name = sha256.Sum([]byte(target))[:12] + "_" + name
	}
	e.docNames[name] = struct{}{}
	return name
}

// allowed consults robots, pacing the first lookup per origin since it
// triggers a robots.txt request to that host.
func (e *Engine) allowed(ctx context.Context, target string) (bool, error) {
	if _, allowAll := e.deps.Robots.(allowAllPolicy); !allowAll {
		if origin, ok := originOf(target); ok {
			if _, seen := e.origins[origin]; !seen {
				e.origins[origin] = struct{}{}
				if err := e.deps.Pacer.Wait(ctx, origin+"/robots.txt"); err != nil {
					return false, err
				}
			}
		}
	}
	return e.deps.Robots.Allowed(ctx, target), nil
}

// fetch applies robots and politeness before delegating to the fetcher.
func (e *Engine) fetch(ctx context.Context, target string, logger *zap.Logger) (FetchResponse, bool) {
	permitted, err := e.allowed(ctx, target)
	if err != nil {
		logger.Warn("politeness wait aborted", zap.Error(err))
		e.finish(target, StateVisitedFailure, 0)
		return FetchResponse{}, false
	}
	if !permitted {
		logger.Info("blocked by robots.txt")
		e.finish(target, StateBlocked, 0)
		return FetchResponse{}, false
	}
	if err := e.deps.Pacer.Wait(ctx, target); err != nil {
		logger.Warn("politeness wait aborted", zap.Error(err))
		e.finish(target, StateVisitedFailure, 0)
		return FetchResponse{}, false
	}
	resp, err := e.deps.Fetcher.Fetch(ctx, FetchRequest{URL: target})
	if err != nil {
		logger.Warn("fetch failed", zap.Error(err))
		e.finish(target, StateVisitedFailure, 0)
		return FetchResponse{}, false
	}
	return resp, true
}

// discover records link and queues it when it is in scope and within depth.
func (e *Engine) discover(link string, depth int) {
	e.discovered[link] = struct{}{}
	if e.frontier.isVisited(link) {
		return
	}
	if !e.scope.Contains(Hostname(link)) {
		if _, known := e.states[link]; !known {
			e.states[link] = StateOffDomain
			e.stats.OffDomain++
		}
		return
	}
	if depth > e.cfg.MaxDepth {
		return
	}
	_, isDocument := documentName(link, e.cfg.DocumentExtensions)
	if isDocument && !e.cfg.DownloadDocuments {
		return
	}
	if e.frontier.push(frontierItem{url: link, depth: depth, document: isDocument}) {
		e.states[link] = StateDiscovered
	}
}

func (e *Engine) finish(target string, state URLState, size int) {
	e.states[target] = state
	switch state {
	case StateVisitedSuccess:
		e.stats.Pages++
	case StateVisitedFailure:
		e.stats.Failed++
	case StateBlocked:
		e.stats.Blocked++
	case StateDocument:
		e.stats.Documents++
	}
	metrics.ObserveCrawl(target, string(state), size)
}

// seeds orders priority URLs, then sitemap entries, then the start URL.
func (e *Engine) seeds(ctx context.Context) []string {
	var seeds []string
	for _, raw := range e.cfg.PriorityURLs {
		if link, ok := ResolveLink(e.start, raw); ok {
			seeds = append(seeds, link)
		}
	}
	if e.cfg.UseSitemap {
		seeds = append(seeds, e.sitemapSeeds(ctx)...)
	}
	return append(seeds, e.start.String())
}

func (e *Engine) sitemapSeeds(ctx context.Context) []string {
	target := e.cfg.SitemapURL
	if target == "" {
		target = (&url.URL{Scheme: e.start.Scheme, Host: e.start.Host, Path: "/sitemap.xml"}).String()
	}
	sm, ok := e.loadSitemap(ctx, target)
	if !ok {
		return nil
	}
	locs := sm.URLs
	for _, child := range sm.Children {
		if !e.scope.Contains(Hostname(child)) {
			continue
		}
		if nested, ok := e.loadSitemap(ctx, child); ok {
			locs = append(locs, nested.URLs...)
		}
	}
	var seeds []string
	for _, loc := range locs {
		if link, ok := ResolveLink(e.start, loc); ok {
			seeds = append(seeds, link)
		}
	}
	e.deps.Logger.Info("sitemap loaded", zap.String("sitemap", target), zap.Int("urls", len(seeds)))
	return seeds
}

func (e *Engine) loadSitemap(ctx context.Context, target string) (Sitemap, bool) {
	logger := e.deps.Logger.With(zap.String("sitemap", target))
	permitted, err := e.allowed(ctx, target)
	if err != nil {
		logger.Warn("politeness wait aborted", zap.Error(err))
		return Sitemap{}, false
	}
	if !permitted {
		logger.Info("sitemap blocked by robots.txt")
		return Sitemap{}, false
	}
	if err := e.deps.Pacer.Wait(ctx, target); err != nil {
		logger.Warn("politeness wait aborted", zap.Error(err))
		return Sitemap{}, false
	}
	resp, err := e.deps.Fetcher.Fetch(ctx, FetchRequest{URL: target})
	if err != nil {
		logger.Warn("sitemap fetch failed", zap.Error(err))
		return Sitemap{}, false
	}
	sm, err := ParseSitemap(resp.Body)
	if err != nil {
		logger.Warn("sitemap parse failed", zap.Error(err))
		return Sitemap{}, false
	}
	return sm, true
}

// responseBase prefers the post-redirect URL as the link resolution base.
func (e *Engine) responseBase(requested string, resp FetchResponse) *url.URL {
	for _, candidate := range []string{resp.URL, requested} {
		if candidate == "" {
			continue
		}
		if normalized, err := NormalizeURL(candidate); err == nil {
			if u, err := url.Parse(normalized); err == nil {
				return u
			}
		}
	}
	return e.start
}

func (e *Engine) result() Result {
	discovered := make([]string, 0, len(e.discovered))
	for link := range e.discovered {
		discovered = append(discovered, link)
	}
	sort.Strings(discovered)
	states := make(map[string]URLState, len(e.states))
	for k, v := range e.states {
		states[k] = v
	}
	return Result{
		Discovered: discovered,
		States:     states,
		Stats:      e.stats,
	}
}

// fallbackTitle derives a title from the last path segment.
func fallbackTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segment := path.Base(strings.TrimRight(u.Path, "/"))
	if segment == "." || segment == "/" || segment == "" {
		return u.Hostname()
	}
	return segment
}

type noPacer struct{}

func (noPacer) Wait(context.Context, string) error { return nil }
