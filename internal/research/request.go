// Package research is the top of the engine: it validates a request,
// dispatches one of the three pipelines, and assembles the response.
package research

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"titan/internal/crawl"
	"titan/internal/rank"
	"titan/internal/synthesis"
)

// Mode selects the pipeline depth for a research run.
type Mode string

const (
	// ModeLite is search-only: no scraping, no synthesis, lowest latency.
	ModeLite Mode = "lite"
	// ModeResearch scrapes the top ranked hits and synthesizes a report.
	ModeResearch Mode = "research"
	// ModeDeep recursively crawls from the top hits before synthesis.
	ModeDeep Mode = "deep"
)

// ErrUnknownMode is returned for any mode outside the three known
// values. It is a validation error: no work is performed.
var ErrUnknownMode = errors.New("research: unknown mode")

// ParseMode validates a mode string, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLite:
		return ModeLite, nil
	case ModeResearch:
		return ModeResearch, nil
	case ModeDeep:
		return ModeDeep, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Request describes one research run. Immutable once dispatched.
type Request struct {
	Query      string   `json:"query"`
	Mode       Mode     `json:"mode"`
	FocusAreas []string `json:"focus_areas,omitempty"`
	MaxResults int      `json:"max_results"`
	UseStealth bool     `json:"use_stealth"`
}

// Response is what every valid request gets back, whatever happened to
// the individual pipeline units along the way.
type Response struct {
	Mode            Mode                       `json:"mode"`
	Results         []rank.RankedHit           `json:"results"`
	Pages           []crawl.Page               `json:"pages,omitempty"`
	IntelligenceMap *synthesis.IntelligenceMap `json:"intelligence_map,omitempty"`
	Count           int                        `json:"count"`
	Timestamp       time.Time                  `json:"timestamp"`
}
