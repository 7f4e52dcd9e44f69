package scrape

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"titan/internal/urlnorm"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// extractPage turns raw HTML into the clean text, title, and outbound
// links a ScrapeResult carries. Readability strips boilerplate; when it
// cannot find an article body (dashboards, listing pages) the whole body
// text is used instead.
func extractPage(rawHTML, pageURL string) (text, title string, links []string) {
	base, _ := url.Parse(pageURL)

	if article, err := readability.FromReader(strings.NewReader(rawHTML), base); err == nil {
		text = cleanText(article.TextContent)
		title = strings.TrimSpace(article.Title)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return text, title, nil
	}

	if text == "" {
		text = cleanText(doc.Find("body").Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link := resolveLink(base, href)
		if link == "" {
			return
		}
		key := urlnorm.Normalize(link)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, link)
	})

	return text, title, links
}

// resolveLink resolves href against base and filters out anything that is
// not a crawlable http(s) page URL.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

func cleanText(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}
