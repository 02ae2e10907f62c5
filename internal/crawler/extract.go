package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nonContentSelector lists elements whose text never reaches the corpus.
const nonContentSelector = "script, style, noscript, nav, header, footer, meta, link, svg, iframe, template"

// Extraction is the pure result of parsing one HTML page.
type Extraction struct {
	Title string
	// Text holds one line per non-empty visible text node.
	Text string
	// Links are absolute, normalized and de-duplicated in document order.
	Links []string
}

// Extract parses body and returns its visible text, title and outbound links.
// Links are resolved against base, or against a <base href> when the page declares one.
func Extract(body []byte, base *url.URL) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse html: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if declared, err := url.Parse(strings.TrimSpace(href)); err == nil {
			if base != nil {
				declared = base.ResolveReference(declared)
			}
			base = declared
		}
	}

	out := Extraction{
		Title: strings.Join(strings.Fields(doc.Find("title").First().Text()), " "),
		Links: extractLinks(doc, base),
	}

	doc.Find(nonContentSelector).Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var lines []string
	for _, n := range root.Nodes {
		collectText(n, &lines)
	}
	out.Text = strings.Join(lines, "\n")
	return out, nil
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, ok := ResolveLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

func collectText(n *html.Node, lines *[]string) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		for _, raw := range strings.Split(n.Data, "\n") {
			if line := strings.Join(strings.Fields(raw), " "); line != "" {
				*lines = append(*lines, line)
			}
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}
