package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a search query has no content.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchQuery is a retrieval request as received from callers. A nil
// MinScore means the configured default; an explicit 0 keeps every chunk with
// a positive score. Chunks scoring 0 share no signal with the query and are
// never returned.
type SearchQuery struct {
	Query    string   `json:"query"`
	TopK     int      `json:"top_k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// MinScoreOr returns the requested threshold, or def when none was given.
func (q SearchQuery) MinScoreOr(def float64) float64 {
	if q.MinScore == nil {
		return def
	}
	return *q.MinScore
}

// Validate rejects empty queries and applies defaults: TopK falls back to
// defaultTopK and is capped at maxTopK; a negative MinScore becomes 0.
func (q *SearchQuery) Validate(defaultTopK, maxTopK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	if q.MinScore != nil && *q.MinScore < 0 {
		zero := 0.0
		q.MinScore = &zero
	}
	return nil
}
