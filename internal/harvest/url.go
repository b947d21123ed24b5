package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves ref against base and drops the fragment.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference: %w", err)
	}
	resolved := b.ResolveReference(r)
	resolved.Fragment = ""
	return resolved.String(), nil
}

// IsAbsoluteHTTPURL reports whether s is a well-formed http(s) URL with a host.
func IsAbsoluteHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HostOf returns the lower-cased hostname of raw, or "" when unparsable.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
