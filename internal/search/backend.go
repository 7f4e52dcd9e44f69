// Package search fans a research query out to independent search backends
// and merges their raw hits into one deduplicated list.
package search

import "context"

// Backend is a single search provider. Implementations must be safe for
// concurrent use and must respect ctx cancellation; the multiplexer wraps
// every call in its own timeout.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// Hit is a single raw search result as returned by a backend.
type Hit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Backend string `json:"backend"`
}
