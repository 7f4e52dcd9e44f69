package scrape

import (
	"strings"
	"testing"
)

func TestExtractPageLinks(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Acme</title></head><body>
	<article><p>` + strings.Repeat("content ", 50) + `</p></article>
	<a href="/pricing">Pricing</a>
	<a href="https://acme.com/docs">Docs</a>
	<a href="https://acme.com/docs/">Docs again</a>
	<a href="#section">Anchor</a>
	<a href="mailto:hi@acme.com">Mail</a>
	<a href="javascript:void(0)">JS</a>
	</body></html>`

	_, title, links := extractPage(html, "https://acme.com/home")

	if title != "Acme" {
		t.Errorf("title = %q", title)
	}
	want := []string{"https://acme.com/pricing", "https://acme.com/docs"}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("links[%d] = %q, want %q", i, links[i], w)
		}
	}
}

func TestExtractPageTextWithoutArticle(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Listing</title></head><body>
	<div>row one</div><div>row two</div>
	</body></html>`

	text, title, _ := extractPage(html, "https://acme.com")
	if title != "Listing" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(text, "row one") || !strings.Contains(text, "row two") {
		t.Errorf("body text not extracted: %q", text)
	}
}

func TestExtractPageCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	html := "<html><body><p>a\n\n\n  b\t\tc</p></body></html>"
	text, _, _ := extractPage(html, "https://acme.com")
	if text != "a b c" {
		t.Errorf("text = %q, want %q", text, "a b c")
	}
}

func TestExtractPageGarbageInput(t *testing.T) {
	t.Parallel()

	text, title, links := extractPage("not html at all", "https://acme.com")
	if title != "" || len(links) != 0 {
		t.Errorf("unexpected structure from garbage: title=%q links=%v", title, links)
	}
	_ = text
}
