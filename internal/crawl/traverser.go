package crawl

import (
	"context"

	"go.uber.org/zap"

	"titan/internal/config"
	"titan/internal/scrape"
	"titan/internal/urlnorm"
)

// Page is one page visited by a traversal run.
type Page struct {
	scrape.Result
	Depth int `json:"depth"`
}

// Fetcher is the escalation engine contract the traverser crawls through.
type Fetcher interface {
	Fetch(ctx context.Context, url string, forceStealth bool) scrape.Result
}

// Traverser runs a bounded breadth-first crawl rooted at one seed URL.
// Three bounds apply on every run: max depth, a hard page cap, and a
// same-registrable-domain filter on outbound links.
type Traverser struct {
	fetcher Fetcher
	scorer  *Scorer
	cfg     config.CrawlConfig
	log     *zap.Logger
}

// NewTraverser wires the traversal engine.
func NewTraverser(fetcher Fetcher, scorer *Scorer, cfg config.CrawlConfig, log *zap.Logger) *Traverser {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = config.DefaultMaxDepth
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = config.DefaultMaxPages
	}
	return &Traverser{fetcher: fetcher, scorer: scorer, cfg: cfg, log: log}
}

type queueItem struct {
	url   string
	depth int
}

// Crawl visits pages breadth-first from root until the queue drains, the
// page cap is reached, or ctx is cancelled. Unfetchable URLs are skipped,
// not fatal. A URL is never visited twice within one run.
func (t *Traverser) Crawl(ctx context.Context, root string, query string, focusAreas []string, useStealth bool) []Page {
	visited := make(map[string]struct{})
	queue := []queueItem{{url: root, depth: 0}}
	visited[urlnorm.Normalize(root)] = struct{}{}

	var pages []Page
	fetched := 0

	for len(queue) > 0 && fetched < t.cfg.MaxPages {
		if ctx.Err() != nil {
			t.log.Debug("traversal cancelled", zap.String("root", root))
			break
		}

		item := queue[0]
		queue = queue[1:]

		res := t.fetcher.Fetch(ctx, item.url, useStealth)
		fetched++
		if !res.OK {
			continue
		}
		pages = append(pages, Page{Result: res, Depth: item.depth})

		if item.depth >= t.cfg.MaxDepth {
			continue
		}

		var sameSite []string
		for _, link := range res.Links {
			if sameDomain(root, link) {
				sameSite = append(sameSite, link)
			}
		}

		for _, link := range t.scorer.ScoreLinks(ctx, query, sameSite, focusAreas) {
			key := urlnorm.Normalize(link)
			if _, dup := visited[key]; dup {
				continue
			}
			visited[key] = struct{}{}
			queue = append(queue, queueItem{url: link, depth: item.depth + 1})
		}
	}

	t.log.Info("traversal complete",
		zap.String("root", root),
		zap.Int("visited", fetched),
		zap.Int("pages", len(pages)))
	return pages
}
