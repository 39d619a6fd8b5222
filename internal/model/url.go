package model

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a user-supplied status-page address so that two
// spellings of the same page map to the same source row: https is assumed
// when no scheme is given, host and path are lowercased, query/fragment and
// any trailing slash are dropped.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid url %q: no host", raw)
	}
	normalized := u.Scheme + "://" + u.Host + u.Path
	normalized = strings.TrimSuffix(normalized, "/")
	return strings.ToLower(normalized), nil
}
