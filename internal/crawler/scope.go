package crawler

import "strings"

// domainScope stores exact hosts and suffix wildcards derived from configuration.
type domainScope struct {
	exact    map[string]struct{}
	suffixes []string
}

// newDomainScope parses patterns such as "example.edu", "*.example.edu" or ".example.edu".
// Wildcards match the bare suffix as well as any subdomain.
func newDomainScope(patterns []string) *domainScope {
	scope := &domainScope{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			scope.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			scope.addSuffix(strings.TrimPrefix(value, "."))
		default:
			scope.exact[value] = struct{}{}
		}
	}
	return scope
}

func (s *domainScope) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range s.suffixes {
		if existing == suffix {
			return
		}
	}
	s.suffixes = append(s.suffixes, suffix)
}

// Contains reports whether host falls inside the crawl scope.
func (s *domainScope) Contains(host string) bool {
	if s == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := s.exact[host]; exact {
		return true
	}
	for _, suffix := range s.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
