// Package metrics exposes Prometheus collectors for the crawl, index and chat paths.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerDocumentsTotal      *prometheus.CounterVec
	crawlerPolitenessWait      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	indexChunksTotal           *prometheus.CounterVec
	ragQueriesTotal            *prometheus.CounterVec
	ragQueryDurationSeconds    prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of crawl URLs resolved, labeled by site and terminal state.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_documents_total",
				Help: "Total number of binary documents downloaded, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerPolitenessWait = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_politeness_wait_seconds",
				Help:    "Histogram of politeness delays inserted between fetches.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)

		indexChunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_chunks_total",
				Help: "Total number of chunks written to the vector index, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		ragQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_queries_total",
				Help: "Total number of answered questions, labeled by status.",
			},
			[]string{"status"},
		)

		ragQueryDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_query_duration_seconds",
				Help:    "Histogram of retrieval plus generation latency.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl records the terminal state of one crawl URL.
func ObserveCrawl(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveDocument records a binary document download outcome.
func ObserveDocument(status string) {
	Init()
	crawlerDocumentsTotal.WithLabelValues(status).Inc()
}

// ObservePolitenessWait records the duration of a politeness pause.
func ObservePolitenessWait(duration time.Duration) {
	Init()
	crawlerPolitenessWait.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveIndexChunks adds n chunks to the counter for operation ("build" or "update") and outcome.
func ObserveIndexChunks(operation, outcome string, n int) {
	Init()
	if n <= 0 {
		return
	}
	indexChunksTotal.WithLabelValues(operation, outcome).Add(float64(n))
}

// ObserveQuery records one question answered (or failed) and its latency.
func ObserveQuery(status string, duration time.Duration) {
	Init()
	ragQueriesTotal.WithLabelValues(status).Inc()
	ragQueryDurationSeconds.Observe(duration.Seconds())
}
