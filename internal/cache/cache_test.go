package cache

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type countingRecorder struct {
	mu                      sync.Mutex
	hits, misses, evictions int
}

func (r *countingRecorder) Hit(string)      { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *countingRecorder) Miss(string)     { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *countingRecorder) Eviction(string) { r.mu.Lock(); r.evictions++; r.mu.Unlock() }

func TestSizeNeverExceedsMax(t *testing.T) {
	for _, n := range []int{1, 2, 5, 50} {
		c := New[int]("t", Policy{TTL: time.Minute, MaxSize: n})
		for i := 0; i <= n; i++ {
			c.Set(fmt.Sprintf("k%d", i), i)
		}
		if got := c.Len(); got > n {
			t.Fatalf("maxSize=%d: size %d after %d sets", n, got, n+1)
		}
	}
}

func TestEvictsOldestWriteNotLeastRecentlyRead(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string]("t", Policy{TTL: time.Hour, MaxSize: 3}, WithClock(clock))

	c.Set("a", "1")
	clock.Advance(time.Second)
	c.Set("b", "2")
	clock.Advance(time.Second)
	c.Set("c", "3")

	// Reading "a" must not protect it.
	for i := 0; i < 10; i++ {
		if _, ok := c.Get("a"); !ok {
			t.Fatalf("a should be live")
		}
	}
	clock.Advance(time.Second)
	c.Set("d", "4")

	if c.Has("a") {
		t.Fatalf("a has the oldest write and should have been evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if !c.Has(k) {
			t.Fatalf("%s should still be cached", k)
		}
	}
}

func TestEvictionTieBreaksOnWriteOrder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int]("t", Policy{TTL: time.Hour, MaxSize: 2}, WithClock(clock))
	c.Set("first", 1)
	c.Set("second", 2)
	c.Set("third", 3)
	if c.Has("first") || !c.Has("second") || !c.Has("third") {
		t.Fatalf("expected the earliest write to go on a timestamp tie")
	}
}

func TestRewriteRefreshesWriteTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int]("t", Policy{TTL: time.Hour, MaxSize: 2}, WithClock(clock))
	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	// Rewriting "a" while full evicts the oldest write, which is "a" itself.
	c.Set("a", 10)
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	clock.Advance(time.Second)
	c.Set("c", 3)
	if c.Has("b") {
		t.Fatalf("b is now the oldest write and should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Fatalf("a = %v, %v", v, ok)
	}
}

func TestExpiredEntryIsRemovedOnRead(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string]("t", Policy{TTL: 10 * time.Second, MaxSize: 10}, WithClock(clock))
	c.Set("k", "v")

	clock.Advance(10 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry is live while now == expiresAt")
	}

	clock.Advance(time.Millisecond)
	if c.Len() != 1 {
		t.Fatalf("expiry is lazy: entry should linger until accessed")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to be absent")
	}
	if c.Has("k") {
		t.Fatalf("has should be false after expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should have been deleted on read")
	}
}

func TestPerEntryTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int]("t", Policy{TTL: time.Minute, MaxSize: 10}, WithClock(clock))
	c.SetTTL("short", 1, time.Second)
	c.Set("default", 2)

	clock.Advance(2 * time.Second)
	if c.Has("short") {
		t.Fatalf("short ttl entry should be expired")
	}
	if !c.Has("default") {
		t.Fatalf("default ttl entry should be live")
	}
}

func TestInvalidateRegexRemovesExactlyMatches(t *testing.T) {
	c := New[int]("t", Policy{TTL: time.Minute, MaxSize: 20})
	for _, k := range []string{"batches-all", "batches-page-1", "batch-7", "events-batches-1", "my-batches-x"} {
		c.Set(k, 1)
	}

	n := c.InvalidateMatching(regexp.MustCompile(`^batches-`))
	if n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if got, want := keys(c), []string{"batch-7", "events-batches-1", "my-batches-x"}; fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("remaining keys %v, want %v", got, want)
	}
	if c.InvalidateMatching(nil) != 0 {
		t.Fatalf("nil pattern removes nothing")
	}
}

func TestInvalidateLiteral(t *testing.T) {
	c := New[int]("t", Policy{TTL: time.Minute, MaxSize: 20})
	c.Set("batch-1", 1)
	c.Set("batch-12", 1)
	c.Set("events-1", 1)

	if n := c.Invalidate("batch-1"); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if !c.Has("events-1") {
		t.Fatalf("events-1 should survive")
	}
}

func TestStatsDoesNotMutate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int]("t", Policy{TTL: time.Minute, MaxSize: 10}, WithClock(clock))
	c.SetTTL("old", 1, time.Second)
	c.Set("new", 2)
	clock.Advance(5 * time.Second)

	s := c.Stats()
	if s.Total != 2 || s.Live != 1 || s.Expired != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if c.Len() != 2 {
		t.Fatalf("stats must not remove expired entries")
	}
}

func TestClearAndDelete(t *testing.T) {
	c := New[int]("t", Policy{})
	c.Set("a", 1)
	c.Set("b", 2)
	if !c.Delete("a") || c.Delete("a") {
		t.Fatalf("delete should report presence once")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("clear left %d entries", c.Len())
	}
}

func TestRecorder(t *testing.T) {
	rec := &countingRecorder{}
	c := New[int]("entities", Policy{TTL: time.Minute, MaxSize: 1}, WithRecorder(rec))
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Set("b", 2)

	if rec.hits != 1 || rec.misses != 1 || rec.evictions != 1 {
		t.Fatalf("unexpected counts %+v", rec)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]("t", Policy{TTL: time.Minute, MaxSize: 64})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := fmt.Sprintf("k%d", (g*500+i)%100)
				c.Set(k, i)
				c.Get(k)
				if i%50 == 0 {
					c.Invalidate("k1")
					_ = c.Stats()
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Fatalf("size %d exceeds max", c.Len())
	}
}

func keys[V any](c *Cache[V]) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for k := range c.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
