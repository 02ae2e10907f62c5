package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Sitemap holds the entries of a sitemap.xml document.
type Sitemap struct {
	// URLs are page locations from <urlset>.
	URLs []string
	// Children are nested sitemap locations from <sitemapindex>.
	Children []string
}

// ParseSitemap reads <loc> entries from a urlset or sitemapindex document.
func ParseSitemap(body []byte) (Sitemap, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return Sitemap{}, fmt.Errorf("parse sitemap: %w", err)
	}
	var sm Sitemap
	for _, n := range xmlquery.Find(doc, "//url/loc") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			sm.URLs = append(sm.URLs, loc)
		}
	}
	for _, n := range xmlquery.Find(doc, "//sitemap/loc") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			sm.Children = append(sm.Children, loc)
		}
	}
	return sm, nil
}
