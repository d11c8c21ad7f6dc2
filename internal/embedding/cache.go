package embedding

import (
	"container/list"
	"sync"
)

// QueryCache remembers the vectors of recently embedded single texts so a
// repeated query does not round-trip to the model. Vectors are copied on the
// way in and out; callers may mutate what they get back.
type QueryCache struct {
	limit   int
	entries map[string]*list.Element
	order   *list.List

	mu     sync.Mutex
	hits   int64
	misses int64
}

type queryEntry struct {
	text string
	vec  []float32
}

// NewQueryCache returns a cache holding at most limit vectors. limit <= 0
// turns the cache off; lookups still count as misses.
func NewQueryCache(limit int) *QueryCache {
	return &QueryCache{
		limit:   limit,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Lookup returns a copy of the vector cached for text.
func (c *QueryCache) Lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return cloneVector(el.Value.(*queryEntry).vec), true
}

// Remember caches vec for text, dropping the least recently used vector when
// the cache is full.
func (c *QueryCache) Remember(text string, vec []float32) {
	if c.limit <= 0 || len(vec) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[text]; ok {
		el.Value.(*queryEntry).vec = cloneVector(vec)
		c.order.MoveToFront(el)
		return
	}
	c.entries[text] = c.order.PushFront(&queryEntry{text: text, vec: cloneVector(vec)})
	for c.order.Len() > c.limit {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*queryEntry).text)
	}
}

// Len returns the number of cached vectors.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Counters returns the lookup hit and miss totals.
func (c *QueryCache) Counters() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
