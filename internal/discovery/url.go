package discovery

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeURL standardizes a URL for visited-set comparisons.
// It lowercases the scheme and host, removes default ports, drops the
// fragment and sorts query parameters.
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// seenSet tracks normalized URLs.
type seenSet map[string]struct{}

// add records raw and reports whether it was new. Unparsable URLs are
// compared verbatim.
func (s seenSet) add(raw string) bool {
	key, err := normalizeURL(raw)
	if err != nil {
		key = raw
	}
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}
