package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrUnsupportedScheme is returned for links that are not http(s).
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// NormalizeURL standardizes a URL into its crawl identity key.
// It lowercases the scheme and host, removes default ports, drops the fragment,
// strips trailing slashes from the path and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalize(u)
}

func normalize(u *url.URL) (string, error) {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", u.String())
	}
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")

	u.RawQuery = u.Query().Encode()
	u.ForceQuery = false

	return u.String(), nil
}

// ResolveLink resolves href against base and normalizes the result.
// It reports false for empty, non-http(s) or unparsable links.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}
	normalized, err := normalize(resolved)
	if err != nil {
		return "", false
	}
	return normalized, true
}

// Hostname returns the lowercase host of rawURL without port, or "".
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// documentName returns the file basename of rawURL when its path carries one of exts.
func documentName(rawURL string, exts []string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", false
	}
	ext := strings.ToLower(path.Ext(base))
	for _, candidate := range exts {
		if ext != "" && ext == strings.ToLower(candidate) {
			return base, true
		}
	}
	return "", false
}

// originOf returns the lowercase scheme://host of rawURL.
func originOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	return originKey(u), true
}

func originKey(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
