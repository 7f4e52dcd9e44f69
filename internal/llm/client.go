// Package llm provides the reasoning-service client used by the ranker,
// the link signal scorer, and the synthesizer. Every caller must tolerate
// the service failing or returning malformed output; the client only
// promises a best-effort completion within its timeout.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable is returned when no reasoning service is configured.
// Callers degrade to their deterministic fallbacks on any error, so this
// is informational rather than fatal.
var ErrUnavailable = errors.New("llm: reasoning service not configured")

// Client is the reasoning-service contract. Complete sends one prompt and
// returns raw text; Embed returns an embedding vector for indexing.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ExtractJSON pulls the first JSON value out of a model response that may
// be wrapped in prose or a markdown fence. Returns "" when no JSON-looking
// span is present.
func ExtractJSON(response string) string {
	objStart := strings.Index(response, "{")
	arrStart := strings.Index(response, "[")

	start, closer := objStart, "}"
	if start == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(response, closer)
	if end <= start {
		return ""
	}
	return response[start : end+1]
}
