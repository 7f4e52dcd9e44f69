package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const ddgFixture = `<!DOCTYPE html>
<html><body>
<div class="results">
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Facme.com%2Fpricing&amp;rut=abc">Acme Pricing</a>
    </h2>
    <a class="result__snippet" href="https://acme.com/pricing">Plans start at <b>$10</b>/mo.</a>
  </div>
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a rel="nofollow" class="result__a" href="https://acme.com/docs">Acme Docs</a>
    </h2>
    <a class="result__snippet" href="https://acme.com/docs">Developer documentation.</a>
  </div>
  <div class="result results_links">
    <h2 class="result__title"><a class="result__a" href="https://acme.com/blog"></a></h2>
  </div>
</div>
</body></html>`

func TestDuckDuckGoParsesResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "acme pricing" {
			t.Errorf("query = %q, want %q", q, "acme pricing")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(ddgFixture))
	}))
	defer srv.Close()

	backend := NewDuckDuckGo(srv.Client())
	backend.baseURL = srv.URL

	hits, err := backend.Search(context.Background(), "acme pricing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// The titleless third result is skipped.
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}

	if hits[0].URL != "https://acme.com/pricing" {
		t.Errorf("redirect not unwrapped: %q", hits[0].URL)
	}
	if hits[0].Title != "Acme Pricing" {
		t.Errorf("title = %q", hits[0].Title)
	}
	if hits[0].Snippet == "" {
		t.Error("snippet should be extracted")
	}
	if hits[0].Backend != "duckduckgo" {
		t.Errorf("backend = %q", hits[0].Backend)
	}
	if hits[1].URL != "https://acme.com/docs" {
		t.Errorf("plain URL mangled: %q", hits[1].URL)
	}
}

func TestDuckDuckGoRespectsLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ddgFixture))
	}))
	defer srv.Close()

	backend := NewDuckDuckGo(srv.Client())
	backend.baseURL = srv.URL

	hits, err := backend.Search(context.Background(), "acme", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
}

func TestDuckDuckGoServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	backend := NewDuckDuckGo(srv.Client())
	backend.baseURL = srv.URL

	if _, err := backend.Search(context.Background(), "acme", 5); err == nil {
		t.Fatal("expected error on HTTP 429")
	}
}

func TestDecodeRedirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Facme.com%2F&rut=x", "https://acme.com/"},
		{"https://acme.com/direct", "https://acme.com/direct"},
	}
	for _, tt := range tests {
		if got := decodeRedirect(tt.in); got != tt.want {
			t.Errorf("decodeRedirect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
