package crawler

import (
	"net/http"
	"strings"
)

// FetchRequest describes a single HTTP GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse carries the outcome of a fetch.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// PageRecord is the extracted content of one successfully crawled page.
type PageRecord struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"content"`
}

// URLState is the lifecycle position of a URL within one crawl run.
type URLState string

const (
	// StateDiscovered marks a URL that is queued but not yet resolved.
	StateDiscovered URLState = "discovered"
	// StateBlocked marks a URL disallowed by robots.txt.
	StateBlocked URLState = "blocked"
	// StateVisitedSuccess marks a fetched page that produced a PageRecord.
	StateVisitedSuccess URLState = "visited_success"
	// StateVisitedFailure marks a fetch that failed or returned non-HTML content.
	StateVisitedFailure URLState = "visited_failure"
	// StateOffDomain marks a link outside the crawl scope; it is never fetched.
	StateOffDomain URLState = "discovered_off_domain"
	// StateDocument marks a binary document downloaded verbatim.
	StateDocument URLState = "document"
)

// Stats counts terminal outcomes of a run.
type Stats struct {
	Pages     int `json:"pages"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
	OffDomain int `json:"off_domain"`
	Documents int `json:"documents"`
}

// Result summarizes a finished crawl.
type Result struct {
	// Discovered lists every normalized href seen, sorted.
	Discovered []string
	States     map[string]URLState
	Stats      Stats
}

// IsHTML reports whether a Content-Type header value denotes an HTML document.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
