// Package scrape implements the escalation ladder that turns a URL into
// clean page text: cache, then a lightweight HTTP fetch, then a stealth
// render through the headless browser pool. A URL that survives none of
// the tiers yields a failed result the caller can skip, never an error
// that kills a pipeline.
package scrape

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"titan/internal/config"
	"titan/internal/urlnorm"
)

// Method records which tier produced a result.
type Method string

const (
	MethodHTTP    Method = "http"
	MethodStealth Method = "stealth"
)

// Result is the outcome of one fetch. OK=false marks a skippable unit;
// failed results are never cached so a transient failure can be retried.
type Result struct {
	URL    string   `json:"url"`
	Text   string   `json:"text"`
	Title  string   `json:"title"`
	Links  []string `json:"links,omitempty"`
	Method Method   `json:"method"`
	OK     bool     `json:"ok"`
}

// Renderer is the stealth tier: a headless render of one URL. The browser
// pool implements it. A nil Renderer disables the stealth tier.
type Renderer interface {
	Render(ctx context.Context, url string) (html, title string, err error)
}

// Engine runs the escalation ladder. It owns the scrape cache; no other
// component reads or writes cache entries.
type Engine struct {
	cfg      config.ScrapeConfig
	client   *resty.Client
	renderer Renderer
	cache    *lru.LRU[string, Result]
	log      *zap.Logger
}

// NewEngine creates the escalation engine. renderer may be nil, in which
// case the ladder stops after the HTTP tier.
func NewEngine(cfg config.ScrapeConfig, renderer Renderer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}

	client := resty.New().
		SetTimeout(cfg.Timeout()).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Engine{
		cfg:      cfg,
		client:   client,
		renderer: renderer,
		cache:    lru.NewLRU[string, Result](size, nil, cfg.CacheTTL()),
		log:      log,
	}
}

// Fetch runs the ladder for one URL. forceStealth skips the HTTP tier and
// goes straight to the browser. The returned Result always has URL set;
// callers check OK.
func (e *Engine) Fetch(ctx context.Context, url string, forceStealth bool) Result {
	key := urlnorm.Key(url)
	if cached, ok := e.cache.Get(key); ok {
		e.log.Debug("scrape cache hit", zap.String("url", url))
		return cached
	}

	if !forceStealth {
		if res, ok := e.fetchHTTP(ctx, url); ok {
			e.cache.Add(key, res)
			return res
		}
	}

	if e.renderer != nil {
		if res, ok := e.fetchStealth(ctx, url); ok {
			e.cache.Add(key, res)
			return res
		}
	}

	e.log.Warn("all scrape tiers failed", zap.String("url", url))
	return Result{URL: url, OK: false}
}

// fetchHTTP is the lightweight tier: no JavaScript, success only when the
// extracted text clears the minimum content threshold.
func (e *Engine) fetchHTTP(ctx context.Context, url string) (Result, bool) {
	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		e.log.Debug("http tier failed", zap.String("url", url), zap.Error(err))
		return Result{}, false
	}
	if resp.StatusCode() != 200 {
		e.log.Debug("http tier failed", zap.String("url", url), zap.Int("status", resp.StatusCode()))
		return Result{}, false
	}

	body := resp.Body()
	if max := e.cfg.MaxBodyBytes; max > 0 && int64(len(body)) > max {
		body = body[:max]
	}
	if ct := resp.Header().Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text") {
		return Result{}, false
	}

	text, title, links := extractPage(string(body), url)
	if len(text) < e.minContentLen() {
		e.log.Debug("http tier below content threshold, escalating",
			zap.String("url", url), zap.Int("chars", len(text)))
		return Result{}, false
	}

	return Result{URL: url, Text: text, Title: title, Links: links, Method: MethodHTTP, OK: true}, true
}

// fetchStealth renders the page in a pooled browser context.
func (e *Engine) fetchStealth(ctx context.Context, url string) (Result, bool) {
	html, title, err := e.renderer.Render(ctx, url)
	if err != nil {
		e.log.Debug("stealth tier failed", zap.String("url", url), zap.Error(err))
		return Result{}, false
	}

	text, extractedTitle, links := extractPage(html, url)
	if title == "" {
		title = extractedTitle
	}
	if text == "" {
		return Result{}, false
	}

	return Result{URL: url, Text: text, Title: title, Links: links, Method: MethodStealth, OK: true}, true
}

func (e *Engine) minContentLen() int {
	if e.cfg.MinContentLen <= 0 {
		return config.DefaultMinContentLen
	}
	return e.cfg.MinContentLen
}

// CacheLen reports how many results are currently cached.
func (e *Engine) CacheLen() int { return e.cache.Len() }
