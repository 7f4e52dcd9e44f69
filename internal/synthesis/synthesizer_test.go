package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
)

type stubLLM struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func pages() []SourcePage {
	return []SourcePage{
		{URL: "https://acme.com/pricing", Text: "Plans start at $10."},
		{URL: "https://acme.com/docs", Text: "API documentation."},
	}
}

func TestSynthesizeParsesReport(t *testing.T) {
	t.Parallel()

	client := &stubLLM{response: `Here is the report:
{"summary":"Acme sells widgets.","key_findings":["cheap"],"pricing_intelligence":"$10/mo","competitive_landscape":"crowded","market_map":"SMB"}`}
	s := New(client, zap.NewNop())

	got := s.Synthesize(context.Background(), "acme", pages(), "research")
	if got.Degraded() {
		t.Fatalf("unexpected degraded report: %+v", got)
	}
	if got.Summary != "Acme sells widgets." {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.KeyFindings) != 1 || got.KeyFindings[0] != "cheap" {
		t.Errorf("key findings = %v", got.KeyFindings)
	}
	if got.PricingIntelligence != "$10/mo" {
		t.Errorf("pricing = %q", got.PricingIntelligence)
	}
}

func TestSynthesizeEmptyInputSkipsService(t *testing.T) {
	t.Parallel()

	client := &stubLLM{}
	s := New(client, zap.NewNop())

	got := s.Synthesize(context.Background(), "acme", nil, "research")
	if client.calls != 0 {
		t.Error("empty input must not call the reasoning service")
	}
	if got.Degraded() {
		t.Error("empty input is not a failure")
	}
	if !strings.Contains(got.Summary, "No data") {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestSynthesizeServiceFailureDegrades(t *testing.T) {
	t.Parallel()

	client := &stubLLM{err: errors.New("rate limited")}
	s := New(client, zap.NewNop())

	got := s.Synthesize(context.Background(), "acme", pages(), "research")
	if got.Summary != FailedSummary {
		t.Errorf("summary = %q, want %q", got.Summary, FailedSummary)
	}
	if !got.Degraded() || !strings.Contains(got.Err, "rate limited") {
		t.Errorf("error not captured: %+v", got)
	}
}

func TestSynthesizeUnparsableOutputDegrades(t *testing.T) {
	t.Parallel()

	client := &stubLLM{response: "Acme is a company that sells things."}
	s := New(client, zap.NewNop())

	got := s.Synthesize(context.Background(), "acme", pages(), "research")
	if got.Summary != FailedSummary {
		t.Errorf("summary = %q, want degraded", got.Summary)
	}
}

func TestSynthesizeExcerptsLongPages(t *testing.T) {
	t.Parallel()

	client := &stubLLM{response: `{"summary":"ok","key_findings":[],"pricing_intelligence":"","competitive_landscape":"","market_map":""}`}
	s := New(client, zap.NewNop())

	long := []SourcePage{{URL: "https://acme.com", Text: strings.Repeat("x", 10000)}}
	s.Synthesize(context.Background(), "acme", long, "deep")

	if len(client.prompts) != 1 {
		t.Fatal("expected one service call")
	}
	if n := strings.Count(client.prompts[0], "x"); n > 2100 {
		t.Errorf("prompt carries %d chars of page text, want ~2000 excerpt", n)
	}
	if !strings.Contains(client.prompts[0], "--- source: https://acme.com ---") {
		t.Error("excerpt must be tagged with its source URL")
	}
}

func TestExcerptKeepsRuneBoundaries(t *testing.T) {
	t.Parallel()

	// 3-byte runes that do not divide the excerpt length evenly, so a
	// byte slice would cut mid-rune.
	long := strings.Repeat("日", 2000)
	got := excerpt(long)

	if !utf8.ValidString(got) {
		t.Fatal("excerpt produced invalid UTF-8")
	}
	if len(got) > excerptLen+len("…") {
		t.Errorf("excerpt length = %d bytes, want at most %d", len(got), excerptLen+len("…"))
	}
	if short := "short text"; excerpt(short) != short {
		t.Error("short text must pass through unchanged")
	}
}
