package embedding

import (
	"testing"
)

func TestQueryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2)
	c.Remember("retry policy", []float32{1, 0})
	c.Remember("worker crash", []float32{0, 1})
	if _, ok := c.Lookup("retry policy"); !ok {
		t.Fatal("expected hit")
	}
	c.Remember("chunk overlap", []float32{1, 1})

	if _, ok := c.Lookup("worker crash"); ok {
		t.Error("worker crash should have been evicted")
	}
	if _, ok := c.Lookup("retry policy"); !ok {
		t.Error("recently read entry should survive")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestQueryCache_ReturnsCopies(t *testing.T) {
	c := NewQueryCache(4)
	in := []float32{0.5, 0.5}
	c.Remember("q", in)
	in[0] = 9

	got, ok := c.Lookup("q")
	if !ok || got[0] != 0.5 {
		t.Fatalf("cached vector changed with caller slice: %v", got)
	}
	got[1] = 7
	again, _ := c.Lookup("q")
	if again[1] != 0.5 {
		t.Errorf("cached vector changed through returned slice: %v", again)
	}
}

func TestQueryCache_Counters(t *testing.T) {
	c := NewQueryCache(1)
	c.Lookup("a")
	c.Remember("a", []float32{1})
	c.Lookup("a")
	c.Lookup("a")
	if hits, misses := c.Counters(); hits != 2 || misses != 1 {
		t.Errorf("Counters = %d/%d, want 2/1", hits, misses)
	}
}

func TestQueryCache_Disabled(t *testing.T) {
	c := NewQueryCache(0)
	c.Remember("a", []float32{1})
	if c.Len() != 0 {
		t.Errorf("disabled cache stored %d entries", c.Len())
	}
	if _, misses := c.Counters(); misses != 0 {
		t.Errorf("misses = %d before any lookup", misses)
	}
	if _, ok := c.Lookup("a"); ok {
		t.Error("disabled cache returned a hit")
	}
}
