// Package cache holds query relevance results behind an LRU with TTL so
// repeated questions against the same video skip the search pipeline.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/clipsight/clipsight/internal/models"
)

const (
	DefaultTTL        = 10 * time.Minute
	DefaultMaxEntries = 256
)

type entry struct {
	key      string
	videoID  string
	results  []models.SearchResult
	cachedAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// RelevanceCache is an LRU keyed on (query, video, topK). Entries older than
// the TTL are treated as misses and removed on read, never proactively.
type RelevanceCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	hits       int64
	misses     int64
	latencies  []time.Duration // ring of the most recent lookups
	latencyPos int
}

type Option func(*RelevanceCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RelevanceCache) { c.ttl = ttl }
}

func WithMaxEntries(n int) Option {
	return func(c *RelevanceCache) { c.maxEntries = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *RelevanceCache) { c.now = now }
}

func New(opts ...Option) *RelevanceCache {
	c := &RelevanceCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: DefaultMaxEntries,
		ttl:        DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(query, videoID string, topK int) string {
	return fmt.Sprintf("%s|%s|%d", query, videoID, topK)
}

// Get returns the cached results for the key, or (nil, false) on a miss.
// An expired entry counts as a miss and is removed.
func (c *RelevanceCache) Get(query, videoID string, topK int) ([]models.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[cacheKey(query, videoID, topK)]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if c.now().Sub(e.cachedAt) > c.ttl {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.results, true
}

// Put stores results for the key, evicting the least recently used entry
// when the cache is full. Storing an existing key refreshes it.
func (c *RelevanceCache) Put(query, videoID string, topK int, results []models.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, videoID, topK)
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.results = results
		e.cachedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	c.entries[key] = c.order.PushFront(&entry{
		key:      key,
		videoID:  videoID,
		results:  results,
		cachedAt: c.now(),
	})
}

// Invalidate drops every entry for the given video.
func (c *RelevanceCache) Invalidate(videoID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*entry).videoID == videoID {
			c.removeLocked(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// InvalidateAll empties the cache. Counters are kept.
func (c *RelevanceCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *RelevanceCache) removeLocked(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry).key)
}

func (c *RelevanceCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:   c.order.Len(),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// latencyWindow bounds how many lookup timings are retained; older samples
// fall out of the ring as new ones arrive.
const latencyWindow = 128

// RecordLatency tracks how long an uncached lookup took, feeding Recommend.
// Only the most recent latencyWindow samples are kept.
func (c *RelevanceCache) RecordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.latencies) < latencyWindow {
		c.latencies = append(c.latencies, d)
		return
	}
	c.latencies[c.latencyPos] = d
	c.latencyPos = (c.latencyPos + 1) % latencyWindow
}

const minSamples = 20

// Recommend reports whether caching is paying off. With fewer than 20
// recorded lookups there is not enough signal and the answer is to keep
// caching. Slow lookups keep the cache regardless of hit rate; dropping it
// takes both a low hit rate and cheap lookups.
func (c *RelevanceCache) Recommend() (keep bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	if total < minSamples {
		return true, "not enough lookups to judge, keep caching"
	}

	var avg time.Duration
	if len(c.latencies) > 0 {
		var sum time.Duration
		for _, d := range c.latencies {
			sum += d
		}
		avg = sum / time.Duration(len(c.latencies))
	}

	hitRate := float64(c.hits) / float64(total)
	if avg > 100*time.Millisecond {
		return true, fmt.Sprintf("lookups are slow (avg %s, hit rate %.0f%%), keep caching", avg, hitRate*100)
	}
	if hitRate < 0.30 {
		return false, fmt.Sprintf("hit rate %.0f%% with cheap lookups (avg %s), caching adds little", hitRate*100, avg)
	}
	return true, fmt.Sprintf("hit rate %.0f%%, caching is effective", hitRate*100)
}
