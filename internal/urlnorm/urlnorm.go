// Package urlnorm normalizes URLs so that the multiplexer, the scrape
// cache, and the traversal visited-set all agree on URL identity.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Normalize canonicalizes a URL for deduplication: lowercased scheme and
// host, default ports and fragments stripped, trailing slash on the path
// removed (the root path included, so a bare host and "/" agree). The
// original string is returned when it does not parse; dedup then falls
// back to exact matching.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// A bare host and a root slash are the same page.
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// Key returns a short content-addressed cache key for a URL.
func Key(raw string) string {
	sum := sha256.Sum256([]byte(Normalize(raw)))
	return hex.EncodeToString(sum[:])[:16]
}
