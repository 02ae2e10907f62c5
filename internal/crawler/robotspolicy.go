package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const maxRobotsBytes = 1 << 20

// RobotsEnforcer enforces robots.txt directives per origin.
type RobotsEnforcer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	rules map[string]*robotstxt.Group
}

// NewRobotsEnforcer builds a RobotsPolicy respecting the config toggle.
// A nil client falls back to a 10s-timeout default.
func NewRobotsEnforcer(respect bool, userAgent string, client *http.Client, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return AllowAll()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsEnforcer{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		rules:     make(map[string]*robotstxt.Group),
	}
}

// Allowed implements RobotsPolicy. An origin whose robots file cannot be read is allowed,
// and that outcome is remembered for the rest of the run.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	group := r.group(ctx, parsed)
	if group == nil {
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return group.Test(target)
}

// group returns the rules for our user agent at parsed's origin; nil means no restrictions.
func (r *RobotsEnforcer) group(ctx context.Context, parsed *url.URL) *robotstxt.Group {
	origin := originKey(parsed)

	r.mu.Lock()
	defer r.mu.Unlock()
	if group, seen := r.rules[origin]; seen {
		return group
	}
	data, err := r.fetch(ctx, origin)
	var group *robotstxt.Group
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access", zap.String("origin", origin), zap.Error(err))
	} else {
		group = data.FindGroup(r.userAgent)
	}
	r.rules[origin] = group
	return group
}

func (r *RobotsEnforcer) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots body failed", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool { return true }

// AllowAll returns a policy that never blocks.
func AllowAll() RobotsPolicy { return allowAllPolicy{} }
