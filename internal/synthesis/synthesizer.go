// Package synthesis turns a pile of scraped pages into one structured
// intelligence report. The reasoning service does the writing; when it
// fails or returns garbage the caller still gets a valid, degraded report
// rather than an error.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"titan/internal/llm"
)

// excerptLen bounds how much of each page feeds the synthesis context.
const excerptLen = 2000

// FailedSummary is the summary of a degraded report. Callers and tests
// key off this exact string.
const FailedSummary = "Synthesis failed due to API error."

// IntelligenceMap is the structured output of one research run. It is
// immutable after synthesis; Err is set only on the degraded path.
type IntelligenceMap struct {
	Summary              string   `json:"summary"`
	KeyFindings          []string `json:"key_findings"`
	PricingIntelligence  string   `json:"pricing_intelligence"`
	CompetitiveLandscape string   `json:"competitive_landscape"`
	MarketMap            string   `json:"market_map"`
	Err                  string   `json:"error,omitempty"`
}

// Degraded reports whether this map came from the fallback path.
func (m *IntelligenceMap) Degraded() bool { return m.Err != "" }

// SourcePage is one input document: where it came from and what it said.
type SourcePage struct {
	URL  string
	Text string
}

// Synthesizer builds intelligence maps from scraped pages.
type Synthesizer struct {
	client llm.Client
	log    *zap.Logger
}

// New creates a Synthesizer. client may be nil; synthesis then always
// degrades.
func New(client llm.Client, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{client: client, log: log}
}

// Synthesize produces the report for a query from the given pages. An
// empty page set short-circuits to a trivial report with no service call.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, pages []SourcePage, mode string) *IntelligenceMap {
	if len(pages) == 0 {
		return &IntelligenceMap{
			Summary: fmt.Sprintf("No data was found for %q.", query),
		}
	}

	report, err := s.synthesizeLLM(ctx, query, pages, mode)
	if err != nil {
		s.log.Warn("synthesis degraded", zap.String("query", query), zap.Error(err))
		return &IntelligenceMap{
			Summary: FailedSummary,
			Err:     err.Error(),
		}
	}
	return report
}

func (s *Synthesizer) synthesizeLLM(ctx context.Context, query string, pages []SourcePage, mode string) (*IntelligenceMap, error) {
	if s.client == nil {
		return nil, llm.ErrUnavailable
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a competitive-intelligence analyst. Research query: %q (mode: %s).\n", query, mode)
	sb.WriteString(`Using only the source material below, respond with only a JSON object of this exact shape:
{"summary": string, "key_findings": [string], "pricing_intelligence": string, "competitive_landscape": string, "market_map": string}

Source material:
`)
	for _, page := range pages {
		fmt.Fprintf(&sb, "\n--- source: %s ---\n%s\n", page.URL, excerpt(page.Text))
	}

	resp, err := s.client.Complete(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var report IntelligenceMap
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &report); err != nil {
		return nil, fmt.Errorf("unparsable synthesis response: %w", err)
	}
	if report.Summary == "" {
		return nil, fmt.Errorf("synthesis response missing summary")
	}
	report.Err = ""
	return &report, nil
}

func excerpt(text string) string {
	if len(text) <= excerptLen {
		return text
	}
	// Back off to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
