package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGo queries the DuckDuckGo HTML endpoint, which needs no API key.
// Results are parsed out of the rendered result list.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGo creates the backend with the given HTTP client. A nil
// client uses http.DefaultClient.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{
		client:  client,
		baseURL: "https://html.duckduckgo.com/html/",
	}
}

// Name implements Backend.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements Backend.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 30 {
		limit = 30
	}

	searchURL := fmt.Sprintf("%s?q=%s", d.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// DuckDuckGo serves the HTML endpoint to browsers only.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var hits []Hit
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		hit := Hit{
			URL:     decodeRedirect(href),
			Title:   strings.TrimSpace(link.Text()),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			Backend: d.Name(),
		}
		if hit.URL == "" || hit.Title == "" {
			return true
		}
		hits = append(hits, hit)
		return len(hits) < limit
	})

	return hits, nil
}

// decodeRedirect unwraps DuckDuckGo's /l/?uddg= redirect URLs.
func decodeRedirect(href string) string {
	const marker = "duckduckgo.com/l/?uddg="
	idx := strings.Index(href, marker)
	if idx == -1 {
		return href
	}
	decoded, err := url.QueryUnescape(href[idx+len(marker):])
	if err != nil {
		return href
	}
	if amp := strings.Index(decoded, "&"); amp > 0 {
		decoded = decoded[:amp]
	}
	return decoded
}
