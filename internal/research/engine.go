package research

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"titan/internal/config"
	"titan/internal/crawl"
	"titan/internal/rank"
	"titan/internal/scrape"
	"titan/internal/search"
	"titan/internal/synthesis"
	"titan/internal/urlnorm"
)

// Report is what the persistence sink receives after a successful
// RESEARCH or DEEP run.
type Report struct {
	ID        string
	Query     string
	Mode      Mode
	Map       *synthesis.IntelligenceMap
	CreatedAt time.Time
}

// Sink durably stores completed reports. Persistence is fire-and-forget:
// a sink error is logged, never surfaced to the caller.
type Sink interface {
	Store(ctx context.Context, report *Report) error
}

// Fetcher is the scrape escalation contract the dispatcher needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string, forceStealth bool) scrape.Result
}

// Traverser runs one bounded crawl from a root URL.
type Traverser interface {
	Crawl(ctx context.Context, root, query string, focusAreas []string, useStealth bool) []crawl.Page
}

// Engine is the mode dispatcher: one Execute call runs one pipeline.
type Engine struct {
	cfg       config.ResearchConfig
	mux       *search.Multiplexer
	ranker    *rank.Ranker
	fetcher   Fetcher
	traverser Traverser
	synth     *synthesis.Synthesizer
	sink      Sink
	log       *zap.Logger

	// persistWG lets Close wait for in-flight fire-and-forget stores.
	persistWG sync.WaitGroup
}

// NewEngine wires the dispatcher. sink may be nil to disable persistence.
func NewEngine(
	cfg config.ResearchConfig,
	mux *search.Multiplexer,
	ranker *rank.Ranker,
	fetcher Fetcher,
	traverser Traverser,
	synth *synthesis.Synthesizer,
	sink Sink,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = config.DefaultTopK
	}
	if cfg.DeepRoots <= 0 {
		cfg.DeepRoots = config.DefaultDeepRoots
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Engine{
		cfg:       cfg,
		mux:       mux,
		ranker:    ranker,
		fetcher:   fetcher,
		traverser: traverser,
		synth:     synth,
		sink:      sink,
		log:       log,
	}
}

// Execute validates the request and runs the selected pipeline. The only
// error it ever returns is the validation class; everything downstream
// degrades per-unit instead of failing the run.
func (e *Engine) Execute(ctx context.Context, req Request) (*Response, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	req.Mode = mode

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = e.cfg.MaxResults
	}

	e.log.Info("research run starting",
		zap.String("query", req.Query),
		zap.String("mode", string(req.Mode)),
		zap.Strings("focus_areas", req.FocusAreas))

	switch req.Mode {
	case ModeLite:
		return e.executeLite(ctx, req, maxResults), nil
	case ModeResearch:
		return e.executeResearch(ctx, req, maxResults), nil
	default:
		return e.executeDeep(ctx, req, maxResults), nil
	}
}

// executeLite is search-only: raw hits with neutral scores, no scraping,
// no reasoning-service calls.
func (e *Engine) executeLite(ctx context.Context, req Request, maxResults int) *Response {
	hits := e.mux.Search(ctx, req.Query, req.FocusAreas, maxResults)
	results := rank.Neutral(truncHits(hits, maxResults))
	return &Response{
		Mode:      ModeLite,
		Results:   results,
		Count:     len(results),
		Timestamp: time.Now().UTC(),
	}
}

// executeResearch scrapes the top-K ranked hits in parallel and
// synthesizes a report over whatever scraped successfully.
func (e *Engine) executeResearch(ctx context.Context, req Request, maxResults int) *Response {
	hits := e.mux.Search(ctx, req.Query, req.FocusAreas, maxResults)
	ranked := e.ranker.Rank(ctx, req.Query, hits, req.FocusAreas)
	ranked = truncRanked(ranked, maxResults)

	topK := e.cfg.TopK
	if topK > len(ranked) {
		topK = len(ranked)
	}

	results := make([]scrape.Result, topK)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < topK; i++ {
		i := i
		g.Go(func() error {
			// Failed scrapes come back OK=false; never an error.
			results[i] = e.fetcher.Fetch(gctx, ranked[i].URL, req.UseStealth)
			return nil
		})
	}
	_ = g.Wait()

	var pages []synthesis.SourcePage
	for _, res := range results {
		if res.OK {
			pages = append(pages, synthesis.SourcePage{URL: res.URL, Text: res.Text})
		}
	}

	report := e.synth.Synthesize(ctx, req.Query, pages, string(ModeResearch))
	resp := &Response{
		Mode:            ModeResearch,
		Results:         ranked,
		IntelligenceMap: report,
		Count:           len(ranked),
		Timestamp:       time.Now().UTC(),
	}
	e.persist(req, report)
	return resp
}

// executeDeep widens the search, crawls from the top ranked hits in
// parallel, and synthesizes over the union of every visited page.
func (e *Engine) executeDeep(ctx context.Context, req Request, maxResults int) *Response {
	// Wider fan-out than RESEARCH: the crawler needs good roots.
	hits := e.mux.Search(ctx, req.Query, req.FocusAreas, maxResults*2)
	ranked := e.ranker.Rank(ctx, req.Query, hits, req.FocusAreas)

	roots := e.cfg.DeepRoots
	if roots > len(ranked) {
		roots = len(ranked)
	}

	perRoot := make([][]crawl.Page, roots)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < roots; i++ {
		i := i
		g.Go(func() error {
			perRoot[i] = e.traverser.Crawl(gctx, ranked[i].URL, req.Query, req.FocusAreas, req.UseStealth)
			return nil
		})
	}
	_ = g.Wait()

	// Union of all visited pages; parallel traversals can overlap.
	seen := make(map[string]struct{})
	var allPages []crawl.Page
	var sources []synthesis.SourcePage
	for _, pages := range perRoot {
		for _, page := range pages {
			key := urlnorm.Normalize(page.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			allPages = append(allPages, page)
			sources = append(sources, synthesis.SourcePage{URL: page.URL, Text: page.Text})
		}
	}

	report := e.synth.Synthesize(ctx, req.Query, sources, string(ModeDeep))
	ranked = truncRanked(ranked, maxResults)
	resp := &Response{
		Mode:            ModeDeep,
		Results:         ranked,
		Pages:           allPages,
		IntelligenceMap: report,
		Count:           len(ranked),
		Timestamp:       time.Now().UTC(),
	}
	e.persist(req, report)
	return resp
}

// persist hands the report to the sink on a detached goroutine: at most
// once, no retry, failure logged only. The caller's context is not used
// so cancellation after a successful run cannot abort the store.
func (e *Engine) persist(req Request, report *synthesis.IntelligenceMap) {
	if e.sink == nil || report == nil || report.Degraded() {
		return
	}

	rep := &Report{
		ID:        uuid.NewString(),
		Query:     req.Query,
		Mode:      req.Mode,
		Map:       report,
		CreatedAt: time.Now().UTC(),
	}

	e.persistWG.Add(1)
	go func() {
		defer e.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.sink.Store(ctx, rep); err != nil {
			e.log.Warn("report persistence failed",
				zap.String("report_id", rep.ID),
				zap.Error(err))
		}
	}()
}

// Close waits for in-flight persistence writes.
func (e *Engine) Close() {
	e.persistWG.Wait()
}

func truncHits(hits []search.Hit, n int) []search.Hit {
	if len(hits) > n {
		return hits[:n]
	}
	return hits
}

func truncRanked(ranked []rank.RankedHit, n int) []rank.RankedHit {
	if len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}
