// Package cache memoizes read results per backend, statement and options.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/backend"
	"github.com/txn2/sql-gateway/pkg/operation"
)

// Defaults used when Config leaves a field at zero.
const (
	DefaultTTL     = 60 * time.Second
	DefaultMaxSize = 1000
)

// Config configures the cache.
type Config struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

type cacheEntry struct {
	key       string
	value     *backend.Result
	expiresAt time.Time
}

// Cache is a bounded TTL cache that evicts in insertion order. It is safe
// for concurrent use.
type Cache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is the oldest insertion
	hits    uint64
	misses  uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		now:     time.Now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxSize
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key of a request. Options are encoded as JSON,
// which orders map keys, so equal option sets produce equal keys.
func Key(backendName, text string, options operation.Options) (string, error) {
	opts, err := json.Marshal(options)
	if err != nil {
		return "", apperror.Wrap(apperror.Cache, "building cache key", err)
	}
	h := sha256.New()
	h.Write([]byte(backendName))
	h.Write([]byte{0})
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write(opts)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the live entry for the request. An expired entry is removed
// and counted as a miss.
func (c *Cache) Get(backendName, text string, options operation.Options) (*backend.Result, bool, error) {
	key, err := Key(backendName, text, options)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return detach(entry.value), true, nil
}

// detach copies a result crossing the cache boundary so neither the writer
// nor a reader can change a stored entry through its slices or meta. Row
// maps are shared and must be treated as read-only.
func detach(r *backend.Result) *backend.Result {
	out := *r
	out.Columns = slices.Clone(r.Columns)
	out.Rows = slices.Clone(r.Rows)
	out.Meta = maps.Clone(r.Meta)
	return &out
}

// Put stores result for the request. A nil result is ignored and a
// non-positive ttl means the configured default. Storing an existing key
// refreshes its value and expiry but not its eviction position.
func (c *Cache) Put(backendName, text string, options operation.Options, result *backend.Result, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	key, err := Key(backendName, text, options)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	result = detach(result)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = result
		entry.expiresAt = expiresAt
		return nil
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, value: result, expiresAt: expiresAt})
	return nil
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hitRate"`
}

// Stats returns the current counters. HitRate is zero before any lookup.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Size: c.order.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Eligible reports whether op may be served from and stored in the cache.
// Only selects are cached. "cache": false, "noCache": true or a session
// opts a request out.
func Eligible(op *operation.Operation, options operation.Options) bool {
	if op == nil || op.Kind != operation.Select {
		return false
	}
	if enabled, ok := options.Bool(operation.OptionCache); ok && !enabled {
		return false
	}
	if disabled, ok := options.Bool(operation.OptionNoCache); ok && disabled {
		return false
	}
	// A read inside a transaction may see writes no other session can.
	if s, ok := options.String(operation.OptionSession); ok && s != "" {
		return false
	}
	return true
}

// TTLFor returns the per-request TTL from the "cacheTtl" option, in
// milliseconds, or zero when the option is absent or not positive.
func TTLFor(options operation.Options) time.Duration {
	if d, ok := options.Millis(operation.OptionCacheTTL); ok && d > 0 {
		return d
	}
	return 0
}
