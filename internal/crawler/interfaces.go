package crawler

import (
	"context"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RobotsPolicy decides whether a URL may be fetched respecting robots.txt.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Pacer enforces the politeness delay before each fetch.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Sink persists crawl output as it is produced.
type Sink interface {
	SavePage(ctx context.Context, page PageRecord) error
	SaveDocument(ctx context.Context, name string, contentType string, body []byte) error
	Finish(ctx context.Context, result Result) error
}
