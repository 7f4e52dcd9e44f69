package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubBackend struct {
	name  string
	hits  []Hit
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func hit(url, backend string) Hit {
	return Hit{URL: url, Title: url, Backend: backend}
}

func TestSearchMergesAllBackends(t *testing.T) {
	t.Parallel()

	a := &stubBackend{name: "a", hits: []Hit{hit("https://one.com", "a"), hit("https://two.com", "a")}}
	b := &stubBackend{name: "b", hits: []Hit{hit("https://three.com", "b")}}
	mux := NewMultiplexer([]Backend{a, b}, time.Second, zap.NewNop())

	got := mux.Search(context.Background(), "acme", nil, 10)
	if len(got) != 3 {
		t.Fatalf("got %d hits, want 3", len(got))
	}
}

func TestSearchPartialFailure(t *testing.T) {
	t.Parallel()

	good := &stubBackend{name: "good", hits: []Hit{hit("https://ok.com", "good")}}
	bad := &stubBackend{name: "bad", err: errors.New("backend down")}
	mux := NewMultiplexer([]Backend{bad, good}, time.Second, zap.NewNop())

	got := mux.Search(context.Background(), "acme", nil, 10)
	if len(got) != 1 {
		t.Fatalf("got %d hits, want 1 (failing backend must not drop the rest)", len(got))
	}
	if got[0].URL != "https://ok.com" {
		t.Errorf("unexpected hit %+v", got[0])
	}
}

func TestSearchDedupPreservesFirstSeenOrder(t *testing.T) {
	t.Parallel()

	// Backend b is faster but configured second; its duplicate of
	// one.com must lose to backend a's copy, and merge order must follow
	// configuration order, not completion order.
	a := &stubBackend{
		name:  "a",
		delay: 30 * time.Millisecond,
		hits:  []Hit{hit("https://one.com", "a"), hit("https://two.com", "a")},
	}
	b := &stubBackend{
		name: "b",
		hits: []Hit{hit("https://ONE.com/", "b"), hit("https://three.com", "b")},
	}
	mux := NewMultiplexer([]Backend{a, b}, time.Second, zap.NewNop())

	got := mux.Search(context.Background(), "acme", nil, 10)
	want := []string{"https://one.com", "https://two.com", "https://three.com"}
	if len(got) != len(want) {
		t.Fatalf("got %d hits, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].URL != w {
			t.Errorf("hit[%d] = %q, want %q", i, got[i].URL, w)
		}
	}
	if got[0].Backend != "a" {
		t.Errorf("dedup kept %q copy, want first-seen backend a", got[0].Backend)
	}
}

func TestSearchFocusAreasFanOut(t *testing.T) {
	t.Parallel()

	a := &stubBackend{name: "a", hits: []Hit{hit("https://one.com", "a")}}
	mux := NewMultiplexer([]Backend{a}, time.Second, zap.NewNop())

	mux.Search(context.Background(), "acme", []string{"pricing", "security"}, 10)
	if calls := a.calls.Load(); calls != 3 {
		t.Errorf("backend called %d times, want 3 (base + 2 focus areas)", calls)
	}
}

func TestSearchSlowBackendIsTimeBounded(t *testing.T) {
	t.Parallel()

	slow := &stubBackend{name: "slow", delay: 5 * time.Second, hits: []Hit{hit("https://slow.com", "slow")}}
	fast := &stubBackend{name: "fast", hits: []Hit{hit("https://fast.com", "fast")}}
	mux := NewMultiplexer([]Backend{slow, fast}, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	got := mux.Search(context.Background(), "acme", nil, 10)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("search took %v, slow backend stalled the pipeline", elapsed)
	}
	if len(got) != 1 || got[0].Backend != "fast" {
		t.Fatalf("got %+v, want only the fast backend's hit", got)
	}
}
