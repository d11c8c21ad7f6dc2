package rag

import (
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/ragcore/internal/models"
)

func TestFormatContext(t *testing.T) {
	rc := &models.RAGContext{
		Query: "what is bayes",
		Chunks: []models.RankedChunk{
			{Rank: 1, Score: 0.9, Chunk: models.Chunk{SourcePath: "/b.md", Text: "  Bayes theorem.  ",
				Offset: models.ChunkOffset{Index: 0, Start: 0, End: 15, Heading: "Stats"}}},
			{Rank: 2, Score: 0.25, Chunk: models.Chunk{SourcePath: "/a.md", Text: "lorem",
				Offset: models.ChunkOffset{Index: 2, Start: 360, End: 365}}},
		},
		RetrievedAt: time.Now(),
	}
	want := "Relevant context for: what is bayes\n\n" +
		"[1] /b.md (chunk 0, chars 0-15, score 0.900)\nSection: Stats\nBayes theorem.\n\n" +
		"[2] /a.md (chunk 2, chars 360-365, score 0.250)\nlorem\n"
	if got := FormatContext(rc); got != want {
		t.Errorf("FormatContext =\n%s\nwant\n%s", got, want)
	}
	if FormatContext(&models.RAGContext{Query: "x"}) != "" {
		t.Error("empty context should render as empty string")
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  = map[string]int{}
		overlap bool
	)
	for i := 0; i < 50; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			mu.Lock()
			active[key]++
			if active[key] > 1 {
				overlap = true
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active[key]--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if overlap {
		t.Error("two holders of the same key ran concurrently")
	}
	if k.size() != 0 {
		t.Errorf("unused keys retained: %d", k.size())
	}
}
