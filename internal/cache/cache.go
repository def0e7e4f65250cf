// Package cache provides a bounded key/value store with per-entry expiry.
//
// Eviction is FIFO by write time: when the cache is full, the entry with the
// oldest write is dropped. Reads never refresh the write time. Expired entries
// are removed lazily, on the next read of that key or by an eviction pass.
//
// All operations are safe for concurrent use. The underlying map is never
// exposed.
package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTTL     = 60 * time.Second
	DefaultMaxSize = 100
)

// Policy is the expiry and capacity configuration of one cache.
type Policy struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// Named policies used by the data-access layer.
var (
	EntityPolicy    = Policy{TTL: 60 * time.Second, MaxSize: 200}
	LiveEventPolicy = Policy{TTL: 30 * time.Second, MaxSize: 500}
	AggregatePolicy = Policy{TTL: 120 * time.Second, MaxSize: 100}
)

// Recorder receives cache lifecycle events, labelled with the cache name.
type Recorder interface {
	Hit(cache string)
	Miss(cache string)
	Eviction(cache string)
}

type noopRecorder struct{}

func (noopRecorder) Hit(string)      {}
func (noopRecorder) Miss(string)     {}
func (noopRecorder) Eviction(string) {}

// Stats is a point-in-time count of entries. Computing it removes nothing.
type Stats struct {
	Total   int `json:"total"`
	Live    int `json:"live"`
	Expired int `json:"expired"`
}

// Option customises a Cache.
type Option func(*options)

type options struct {
	clock    clockwork.Clock
	recorder Recorder
}

// WithClock sets the time source, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRecorder reports hits, misses and evictions to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

type entry[V any] struct {
	value     V
	writtenAt time.Time
	expiresAt time.Time
	// seq orders writes that share a timestamp.
	seq uint64
}

// Cache is a bounded TTL map from string keys to values of type V.
type Cache[V any] struct {
	name     string
	ttl      time.Duration
	maxSize  int
	clock    clockwork.Clock
	recorder Recorder

	mu    sync.Mutex
	items map[string]entry[V]
	seq   uint64
}

// New builds an empty cache. Non-positive policy fields fall back to
// DefaultTTL and DefaultMaxSize.
func New[V any](name string, p Policy, opts ...Option) *Cache[V] {
	o := options{clock: clockwork.NewRealClock(), recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if p.TTL <= 0 {
		p.TTL = DefaultTTL
	}
	if p.MaxSize <= 0 {
		p.MaxSize = DefaultMaxSize
	}
	return &Cache[V]{
		name:     name,
		ttl:      p.TTL,
		maxSize:  p.MaxSize,
		clock:    o.clock,
		recorder: o.recorder,
		items:    make(map[string]entry[V]),
	}
}

// Name returns the label the cache was created with.
func (c *Cache[V]) Name() string { return c.name }

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, 0)
}

// SetTTL stores value under key, expiring after ttl (default TTL if ttl <= 0).
// When the cache already holds its maximum number of keys, the entry with the
// oldest write is evicted first.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.items[key] = entry[V]{
		value:     value,
		writtenAt: now,
		expiresAt: now.Add(ttl),
		seq:       c.seq,
	}
}

// evictOldest must be called with mu held.
func (c *Cache[V]) evictOldest() {
	var (
		oldestKey string
		oldest    entry[V]
		found     bool
	)
	for k, e := range c.items {
		if !found || e.writtenAt.Before(oldest.writtenAt) ||
			(e.writtenAt.Equal(oldest.writtenAt) && e.seq < oldest.seq) {
			oldestKey, oldest, found = k, e, true
		}
	}
	if found {
		delete(c.items, oldestKey)
		c.recorder.Eviction(c.name)
	}
}

// Get returns the value for key if it is still live. An expired entry is
// deleted and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.recorder.Miss(c.name)
		var zero V
		return zero, false
	}
	if now.After(e.expiresAt) {
		delete(c.items, key)
		c.recorder.Miss(c.name)
		var zero V
		return zero, false
	}
	c.recorder.Hit(c.name)
	return e.value, true
}

// Has reports whether key holds a live entry, with the same lazy removal as Get.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V])
}

// Invalidate deletes every key containing pattern as a literal substring and
// returns how many were removed.
func (c *Cache[V]) Invalidate(pattern string) int {
	return c.invalidate(func(k string) bool { return strings.Contains(k, pattern) })
}

// InvalidateMatching deletes every key matched by re and returns how many
// were removed.
func (c *Cache[V]) InvalidateMatching(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	return c.invalidate(re.MatchString)
}

func (c *Cache[V]) invalidate(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if match(k) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats counts live and expired entries without removing anything.
func (c *Cache[V]) Stats() Stats {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Total: len(c.items)}
	for _, e := range c.items {
		if now.After(e.expiresAt) {
			s.Expired++
		} else {
			s.Live++
		}
	}
	return s
}
