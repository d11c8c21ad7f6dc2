package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name     string
		query    *SearchQuery
		wantErr  error
		wantTopK int
	}{
		{"empty query", &SearchQuery{Query: ""}, ErrEmptyQuery, 0},
		{"whitespace query", &SearchQuery{Query: "  \t"}, ErrEmptyQuery, 0},
		{"sets default top k", &SearchQuery{Query: "x"}, nil, 5},
		{"caps top k", &SearchQuery{Query: "x", TopK: 500}, nil, 50},
		{"keeps explicit top k", &SearchQuery{Query: "x", TopK: 3}, nil, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(5, 50)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && tt.query.TopK != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", tt.query.TopK, tt.wantTopK)
			}
		})
	}
}

func TestSearchQuery_ValidateNegativeMinScore(t *testing.T) {
	neg := -1.0
	q := &SearchQuery{Query: "x", MinScore: &neg}
	if err := q.Validate(5, 0); err != nil {
		t.Fatal(err)
	}
	if got := q.MinScoreOr(0.4); got != 0 {
		t.Errorf("MinScore = %v, want 0", got)
	}
}

func TestSearchQuery_MinScoreOr(t *testing.T) {
	if got := (SearchQuery{}).MinScoreOr(0.4); got != 0.4 {
		t.Errorf("unset MinScore = %v, want the default 0.4", got)
	}
	zero := 0.0
	if got := (SearchQuery{MinScore: &zero}).MinScoreOr(0.4); got != 0 {
		t.Errorf("explicit 0 = %v, want 0", got)
	}
	var q SearchQuery
	if err := json.Unmarshal([]byte(`{"query":"x","min_score":0}`), &q); err != nil {
		t.Fatal(err)
	}
	if q.MinScore == nil || q.MinScoreOr(0.4) != 0 {
		t.Errorf("JSON min_score 0 was not kept: %v", q.MinScore)
	}
}

func TestNewRAGContext(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	res := &SearchResult{
		Query:            "q",
		RetrievedChunks:  []RankedChunk{{Chunk: Chunk{ID: "a#0"}, Score: 0.5, Rank: 1}},
		TotalChunks:      7,
		SearchDurationMs: 2,
	}
	rc := NewRAGContext(res, now)
	if rc.Query != "q" || len(rc.Chunks) != 1 || rc.TotalChunks != 7 || !rc.RetrievedAt.Equal(now) {
		t.Errorf("unexpected context: %+v", rc)
	}
}

func TestDocumentIndexEntry_Summary(t *testing.T) {
	e := &DocumentIndexEntry{ID: "doc:1", Path: "/a", Chunks: []Chunk{{ID: "doc:1#0"}}}
	s := e.Summary()
	if s.Chunks != nil || s.Path != "/a" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if len(e.Chunks) != 1 {
		t.Error("summary must not modify the entry")
	}
}
