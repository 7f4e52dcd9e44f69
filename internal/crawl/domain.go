package crawl

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// registrableDomain returns the eTLD+1 for a URL's host, or the bare host
// when the public suffix list cannot produce one (IP literals, localhost).
func registrableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}

// sameDomain reports whether candidate belongs to the same registrable
// domain as root, so a crawl of acme.com may follow docs.acme.com but
// never twitter.com.
func sameDomain(root, candidate string) bool {
	r := registrableDomain(root)
	return r != "" && r == registrableDomain(candidate)
}
