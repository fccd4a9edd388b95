package coordinator

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL standardizes a URL so duplicates collapse to one form.
// It lowercases the host, strips the fragment, trims a trailing slash from
// non-root paths, and sorts query parameters lexicographically (repeated
// values are sorted too). Only http and https URLs are accepted.
// Normalization is idempotent.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			values := append([]string(nil), q[k]...)
			sort.Strings(values)
			for _, v := range values {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	return u.String(), nil
}

// DomainOf extracts the lowercase hostname from a URL, without the port.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HashURL computes the 32-bit FNV-1a digest of a normalized URL. The
// function is deterministic and stable across restarts; collisions cause
// under-crawling, never double-crawling.
func HashURL(normalized string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalized))
	return h.Sum32()
}
