// Package rank orders multiplexed search hits by relevance to the query.
// Scoring goes through the reasoning service; when that is unavailable or
// returns garbage, every hit gets a neutral score and the multiplexer
// order is kept, so ranking can never fail the pipeline.
package rank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"titan/internal/llm"
	"titan/internal/search"
)

// NeutralScore is assigned to every hit when scoring is unavailable.
const NeutralScore = 0.5

// RankedHit is a search hit with a relevance score in [0,1].
type RankedHit struct {
	search.Hit
	Score float64 `json:"relevance_score"`
}

// Ranker scores hits against the query and focus areas.
type Ranker struct {
	client llm.Client
	log    *zap.Logger
}

// New creates a Ranker. client may be nil; ranking then always falls back
// to neutral scores.
func New(client llm.Client, log *zap.Logger) *Ranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{client: client, log: log}
}

// Rank returns the hits ordered by descending relevance. The sort is
// stable: ties keep the multiplexer's first-seen order, so identical
// inputs always produce identical output.
func (r *Ranker) Rank(ctx context.Context, query string, hits []search.Hit, focusAreas []string) []RankedHit {
	if len(hits) == 0 {
		return nil
	}

	scores, err := r.score(ctx, query, hits, focusAreas)
	if err != nil {
		r.log.Warn("relevance scoring unavailable, keeping multiplexer order", zap.Error(err))
		return Neutral(hits)
	}

	ranked := make([]RankedHit, len(hits))
	for i, h := range hits {
		ranked[i] = RankedHit{Hit: h, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Neutral wraps hits with the neutral score, preserving their order.
func Neutral(hits []search.Hit) []RankedHit {
	ranked := make([]RankedHit, len(hits))
	for i, h := range hits {
		ranked[i] = RankedHit{Hit: h, Score: NeutralScore}
	}
	return ranked
}

// score asks the reasoning service for one batched scoring pass.
func (r *Ranker) score(ctx context.Context, query string, hits []search.Hit, focusAreas []string) ([]float64, error) {
	if r.client == nil {
		return nil, llm.ErrUnavailable
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Score each search result for relevance to the research query %q.\n", query)
	if len(focusAreas) > 0 {
		fmt.Fprintf(&sb, "Focus areas: %s.\n", strings.Join(focusAreas, ", "))
	}
	sb.WriteString("Respond with only a JSON array of {\"index\": int, \"score\": float} objects, score between 0 and 1.\n\nResults:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s — %s\n   %s\n", i, h.Title, h.URL, h.Snippet)
	}

	resp, err := r.client.Complete(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &parsed); err != nil {
		return nil, fmt.Errorf("malformed scoring response: %w", err)
	}

	scores := make([]float64, len(hits))
	for i := range scores {
		scores[i] = NeutralScore
	}
	for _, p := range parsed {
		if p.Index < 0 || p.Index >= len(hits) {
			continue
		}
		scores[p.Index] = clamp(p.Score)
	}
	return scores, nil
}

func clamp(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
