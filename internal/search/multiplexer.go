package search

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"titan/internal/urlnorm"
)

// Multiplexer fans one query out to every configured backend and merges
// the raw hits. One backend failing or timing out never drops results
// from the others; it is logged and skipped.
type Multiplexer struct {
	backends []Backend
	timeout  time.Duration
	log      *zap.Logger
}

// NewMultiplexer creates a multiplexer over the given backends. timeout
// bounds each individual backend call.
func NewMultiplexer(backends []Backend, timeout time.Duration, log *zap.Logger) *Multiplexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Multiplexer{backends: backends, timeout: timeout, log: log}
}

// Search runs the query, plus one augmented query per focus area, against
// all backends concurrently. Hits are deduplicated by normalized URL,
// keeping first-seen order: backends in configuration order, the base
// query before focus-area queries, each backend's own ordering within.
func (m *Multiplexer) Search(ctx context.Context, query string, focusAreas []string, perBackend int) []Hit {
	queries := make([]string, 0, 1+len(focusAreas))
	queries = append(queries, query)
	for _, focus := range focusAreas {
		if focus != "" {
			queries = append(queries, query+" "+focus)
		}
	}

	// One slot per (backend, query) pair so merge order is deterministic
	// no matter which call finishes first.
	slots := make([][]Hit, len(m.backends)*len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for bi, backend := range m.backends {
		for qi, q := range queries {
			slot := bi*len(queries) + qi
			backend, q := backend, q
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(gctx, m.timeout)
				defer cancel()

				hits, err := backend.Search(callCtx, q, perBackend)
				if err != nil {
					// Unit failure: drop this backend's results only.
					m.log.Warn("search backend failed",
						zap.String("backend", backend.Name()),
						zap.String("query", q),
						zap.Error(err))
					return nil
				}
				slots[slot] = hits
				return nil
			})
		}
	}
	// Workers never return errors; Wait is a join.
	_ = g.Wait()

	seen := make(map[string]struct{})
	var merged []Hit
	for _, hits := range slots {
		for _, hit := range hits {
			key := urlnorm.Normalize(hit.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, hit)
		}
	}

	m.log.Debug("search multiplex complete",
		zap.String("query", query),
		zap.Int("backends", len(m.backends)),
		zap.Int("hits", len(merged)))
	return merged
}
