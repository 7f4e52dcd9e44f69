// Package crawl discovers linked pages worth reading: a link signal
// scorer decides which outbound links carry research signal, and a
// bounded breadth-first traverser follows them.
package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"titan/internal/config"
	"titan/internal/llm"
	"titan/internal/urlnorm"
)

// highValueSegments are path keywords that usually lead to substantive
// pages; the keyword fallback matches against them when the reasoning
// service is unavailable.
var highValueSegments = []string{
	"pricing", "docs", "case-study", "case-studies", "whitepaper",
	"product", "features", "api", "customers", "blog",
}

// Scorer selects the subset of a page's outbound links worth following.
// It never fails: any internal error degrades to the keyword heuristic.
type Scorer struct {
	client       llm.Client
	linkCap      int
	heuristicCap int
	log          *zap.Logger
}

// NewScorer creates a Scorer. client may be nil; scoring then always uses
// the keyword heuristic.
func NewScorer(client llm.Client, cfg config.CrawlConfig, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	linkCap := cfg.LinkCap
	if linkCap <= 0 {
		linkCap = config.DefaultLinkCap
	}
	heuristicCap := cfg.HeuristicCap
	if heuristicCap <= 0 {
		heuristicCap = config.DefaultHeuristicCap
	}
	return &Scorer{client: client, linkCap: linkCap, heuristicCap: heuristicCap, log: log}
}

// ScoreLinks returns the links judged high-signal for the research query.
// Input is deduplicated and capped before any reasoning-service call.
func (s *Scorer) ScoreLinks(ctx context.Context, query string, links []string, focusAreas []string) []string {
	candidates := dedupeCap(links, s.linkCap)
	if len(candidates) == 0 {
		return nil
	}

	selected, err := s.scoreLLM(ctx, query, candidates, focusAreas)
	if err != nil {
		s.log.Debug("link scoring degraded to keyword heuristic", zap.Error(err))
		return s.heuristic(candidates)
	}
	return selected
}

func (s *Scorer) scoreLLM(ctx context.Context, query string, candidates []string, focusAreas []string) ([]string, error) {
	if s.client == nil {
		return nil, llm.ErrUnavailable
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are selecting links for competitive research on: %q.\n", query)
	if len(focusAreas) > 0 {
		fmt.Fprintf(&sb, "Focus areas: %s.\n", strings.Join(focusAreas, ", "))
	}
	sb.WriteString("From the list below, pick only the URLs likely to lead to substantive content (pricing, product detail, documentation, case studies). Respond with only a JSON array of the chosen URL strings.\n\n")
	for _, link := range candidates {
		sb.WriteString(link)
		sb.WriteString("\n")
	}

	resp, err := s.client.Complete(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var chosen []string
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &chosen); err != nil {
		return nil, fmt.Errorf("malformed link selection: %w", err)
	}

	// Only accept URLs that were actually offered.
	offered := make(map[string]string, len(candidates))
	for _, c := range candidates {
		offered[urlnorm.Normalize(c)] = c
	}
	var out []string
	for _, c := range chosen {
		if orig, ok := offered[urlnorm.Normalize(c)]; ok {
			out = append(out, orig)
		}
	}
	return out, nil
}

// heuristic matches candidate paths against the high-value segment list.
func (s *Scorer) heuristic(candidates []string) []string {
	var out []string
	for _, link := range candidates {
		lower := strings.ToLower(link)
		for _, seg := range highValueSegments {
			if strings.Contains(lower, seg) {
				out = append(out, link)
				break
			}
		}
		if len(out) >= s.heuristicCap {
			break
		}
	}
	return out
}

func dedupeCap(links []string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, link := range links {
		key := urlnorm.Normalize(link)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, link)
		if len(out) >= limit {
			break
		}
	}
	return out
}
