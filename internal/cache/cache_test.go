package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clipsight/clipsight/internal/models"
)

func results(text string) []models.SearchResult {
	return []models.SearchResult{{Text: text, Score: 1.0}}
}

func TestGetPut(t *testing.T) {
	c := New()

	if _, ok := c.Get("dog", "vid-1", 5); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("dog", "vid-1", 5, results("a dog runs"))

	got, ok := c.Get("dog", "vid-1", 5)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got[0].Text != "a dog runs" {
		t.Errorf("Text = %q, want %q", got[0].Text, "a dog runs")
	}

	// A different topK is a different key.
	if _, ok := c.Get("dog", "vid-1", 10); ok {
		t.Error("expected miss for different topK")
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(WithTTL(time.Minute), WithClock(clock))

	c.Put("dog", "vid-1", 5, results("a dog runs"))

	now = now.Add(59 * time.Second)
	if _, ok := c.Get("dog", "vid-1", 5); !ok {
		t.Fatal("expected hit inside TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("dog", "vid-1", 5); ok {
		t.Fatal("expected miss after TTL")
	}
	if s := c.Stats(); s.Size != 0 {
		t.Errorf("Size = %d, want 0 after expired entry removed", s.Size)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(WithMaxEntries(2))

	c.Put("q1", "vid-1", 5, results("one"))
	c.Put("q2", "vid-1", 5, results("two"))

	// Touch q1 so q2 becomes least recently used.
	if _, ok := c.Get("q1", "vid-1", 5); !ok {
		t.Fatal("expected hit for q1")
	}

	c.Put("q3", "vid-1", 5, results("three"))

	if _, ok := c.Get("q2", "vid-1", 5); ok {
		t.Error("expected q2 evicted")
	}
	if _, ok := c.Get("q1", "vid-1", 5); !ok {
		t.Error("expected q1 retained")
	}
	if _, ok := c.Get("q3", "vid-1", 5); !ok {
		t.Error("expected q3 retained")
	}
}

func TestInvalidateByVideo(t *testing.T) {
	c := New()

	c.Put("dog", "vid-1", 5, results("one"))
	c.Put("cat", "vid-1", 5, results("two"))
	c.Put("dog", "vid-2", 5, results("three"))

	if removed := c.Invalidate("vid-1"); removed != 2 {
		t.Fatalf("Invalidate removed %d, want 2", removed)
	}
	if _, ok := c.Get("dog", "vid-1", 5); ok {
		t.Error("expected vid-1 entries gone")
	}
	if _, ok := c.Get("dog", "vid-2", 5); !ok {
		t.Error("expected vid-2 entry retained")
	}
}

func TestStats(t *testing.T) {
	c := New()

	c.Put("dog", "vid-1", 5, results("one"))
	c.Get("dog", "vid-1", 5)
	c.Get("cat", "vid-1", 5)
	c.Get("cat", "vid-1", 5)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 {
		t.Errorf("Hits/Misses = %d/%d, want 1/2", s.Hits, s.Misses)
	}
	if want := 1.0 / 3.0; s.HitRate != want {
		t.Errorf("HitRate = %v, want %v", s.HitRate, want)
	}
}

func TestRecommend(t *testing.T) {
	c := New()
	if keep, _ := c.Recommend(); !keep {
		t.Error("expected keep with no samples")
	}

	// 25 cheap misses, no hits.
	for i := 0; i < 25; i++ {
		c.Get(fmt.Sprintf("q%d", i), "vid-1", 5)
		c.RecordLatency(5 * time.Millisecond)
	}
	if keep, reason := c.Recommend(); keep {
		t.Errorf("expected drop recommendation, got keep (%s)", reason)
	}

	// Slow lookups flip the recommendation back.
	c2 := New()
	for i := 0; i < 25; i++ {
		c2.Get(fmt.Sprintf("q%d", i), "vid-1", 5)
		c2.RecordLatency(500 * time.Millisecond)
	}
	if keep, reason := c2.Recommend(); !keep {
		t.Errorf("expected keep when lookups are slow, got drop (%s)", reason)
	} else if !strings.Contains(reason, "slow") {
		t.Errorf("reason = %q, want the slow-lookup flag", reason)
	}
}

func TestRecordLatency_RollingWindow(t *testing.T) {
	c := New()
	for i := 0; i < latencyWindow+40; i++ {
		c.RecordLatency(time.Duration(i) * time.Millisecond)
	}
	if len(c.latencies) != latencyWindow {
		t.Fatalf("retained %d samples, want %d", len(c.latencies), latencyWindow)
	}
	// The oldest samples were overwritten in place.
	if c.latencies[0] != time.Duration(latencyWindow)*time.Millisecond {
		t.Errorf("slot 0 = %s, want the first overflow sample", c.latencies[0])
	}
}
