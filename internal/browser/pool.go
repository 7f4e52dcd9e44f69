// Package browser owns the headless browser pool used by the stealth tier
// of the scrape escalation engine. Browser contexts are the most expensive
// resource in the engine, so the pool is fixed-size and acquisition blocks
// until a context is free.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"titan/internal/config"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("browser: pool closed")

// Context is one pooled browser execution context. It must be returned
// with Release on every exit path.
type Context struct {
	id   string
	page *rod.Page
}

// ID identifies the context in logs.
func (c *Context) ID() string { return c.id }

// Pool is a fixed-capacity pool of browser contexts. The underlying
// browser process launches lazily on first acquisition, so constructing a
// Pool is cheap and LITE-mode requests never pay for Chrome.
type Pool struct {
	cfg  config.BrowserConfig
	log  *zap.Logger
	slots chan *Context

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
	closed   bool

	// newPage creates the rod page backing a context; tests replace it.
	newPage func() (*rod.Page, error)
}

// New creates a pool with cfg.PoolSize contexts.
func New(cfg config.BrowserConfig, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = config.DefaultPoolSize
	}

	p := &Pool{
		cfg:   cfg,
		log:   log,
		slots: make(chan *Context, size),
	}
	p.newPage = p.launchPage
	for i := 0; i < size; i++ {
		p.slots <- &Context{id: uuid.NewString()}
	}
	return p
}

// Acquire blocks until a context is free or ctx is cancelled. The page
// backing the context is created on first use.
func (p *Pool) Acquire(ctx context.Context) (*Context, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case c := <-p.slots:
		if c.page == nil {
			page, err := p.newPage()
			if err != nil {
				// Hand the empty slot back so capacity is not lost.
				p.slots <- c
				return nil, fmt.Errorf("failed to create browser context: %w", err)
			}
			c.page = page
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a context to the pool. Safe to call exactly once per
// successful Acquire, on any exit path.
func (p *Pool) Release(c *Context) {
	if c == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.closePage(c)
		return
	}
	p.slots <- c
}

// Close shuts the pool down and closes the browser process. In-flight
// contexts are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	browser := p.browser
	launched := p.launched
	p.browser = nil
	p.launched = nil
	p.mu.Unlock()

	// Drain whatever is currently idle.
	for {
		select {
		case c := <-p.slots:
			p.closePage(c)
		default:
			if browser != nil {
				if err := browser.Close(); err != nil {
					p.log.Warn("browser close failed", zap.Error(err))
				}
			}
			if launched != nil {
				launched.Cleanup()
			}
			return nil
		}
	}
}

// launchPage starts the shared browser on first use and opens one page.
func (p *Pool) launchPage() (*rod.Page, error) {
	browser, err := p.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             p.cfg.ViewportWidth,
		Height:            p.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		p.log.Warn("failed to set viewport", zap.Error(err))
	}

	if p.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: p.cfg.UserAgent,
		}); err != nil {
			p.log.Warn("failed to set user agent", zap.Error(err))
		}
	}

	return page, nil
}

func (p *Pool) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.browser != nil {
		return p.browser, nil
	}

	launch := launcher.New().Headless(p.cfg.Headless)
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	p.log.Info("headless browser launched", zap.Int("pool_size", cap(p.slots)))
	p.browser = browser
	p.launched = launch
	return browser, nil
}

func (p *Pool) closePage(c *Context) {
	if c.page == nil {
		return
	}
	if err := c.page.Close(); err != nil {
		p.log.Debug("page close failed", zap.String("context", c.id), zap.Error(err))
	}
	c.page = nil
}
