package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Render fetches url through a pooled browser context and returns the
// rendered HTML and page title. The context acquired from the pool is
// released on every exit path, including navigation failure and ctx
// cancellation.
func (p *Pool) Render(ctx context.Context, url string) (html, title string, err error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return "", "", fmt.Errorf("acquire browser context: %w", err)
	}
	defer p.Release(c)

	page := c.page.Context(ctx).Timeout(p.cfg.NavTimeout())

	if err := page.Navigate(url); err != nil {
		return "", "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", "", fmt.Errorf("wait load %s: %w", url, err)
	}

	html, err = page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("read html %s: %w", url, err)
	}

	if info, ierr := page.Info(); ierr == nil {
		title = info.Title
	}

	p.log.Debug("stealth render complete",
		zap.String("url", url),
		zap.String("context", c.id),
		zap.Int("html_bytes", len(html)))
	return html, title, nil
}
