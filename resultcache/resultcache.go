// Package resultcache memoizes Evaluate results by the exact fingerprint
// of their inputs. Because Evaluate is a pure, deterministic function of
// (snapshot, config, mc_seed), an exact-match cache is sufficient and
// correct — there is no semantic "close enough" match the way there is
// for free-text LLM prompts, so this cache carries no similarity search,
// no embeddings, and no cache-poisoning validation.
package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/engine"
)

// Config holds cache-wide tuning knobs.
type Config struct {
	DefaultTTL time.Duration
	MaxEntries int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 10 * time.Minute,
		MaxEntries: 10000,
	}
}

// Entry is a stored Evaluate result.
type Entry struct {
	Fingerprint string
	Namespace   string
	Result      engine.EngineResult
	CreatedAt   time.Time
	ExpiresAt   time.Time
	HitCount    int64
}

// Stats reports cache performance.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int64   `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is the in-process exact-match result cache, namespaced per
// project so one caller can never read another caller's cached decision.
type Cache struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	config Config

	store map[string]map[string]*Entry // namespace -> fingerprint -> entry

	hits      int64
	misses    int64
	evictions int64
}

// New creates a result cache.
func New(logger zerolog.Logger, config ...Config) *Cache {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Cache{
		logger: logger.With().Str("component", "result_cache").Logger(),
		config: cfg,
		store:  make(map[string]map[string]*Entry),
	}
}

// Fingerprint derives the cache key for a snapshot: hashes every field
// that can affect Evaluate's output — variants, exposures, conversions,
// engagement, covariate, history, and the full EngineConfig (not just
// MCSeed) — so two calls that differ in any of these never collide on
// the same cached decision.
func Fingerprint(experimentKey string, snapshot engine.ExperimentSnapshot) string {
	h := sha256.New()
	h.Write([]byte(experimentKey))
	for _, v := range snapshot.Variants {
		fmt.Fprintf(h, "|%s|%d|%d", v, snapshot.Exposures[v], snapshot.Conversions[v])
		if eng, ok := snapshot.Engagement[v]; ok {
			fmt.Fprintf(h, "|eng:%v", eng)
		}
		if cov, ok := snapshot.Covariate[v]; ok {
			fmt.Fprintf(h, "|cov:%v", cov)
		}
	}
	// Config and History are marshaled to JSON for a deterministic,
	// complete encoding rather than hand-picking fields that might grow
	// stale as EngineConfig gains options.
	if cfgBytes, err := json.Marshal(snapshot.Config); err == nil {
		h.Write(cfgBytes)
	}
	if histBytes, err := json.Marshal(snapshot.History); err == nil {
		h.Write(histBytes)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for (namespace, fingerprint), if present
// and not expired.
func (c *Cache) Get(namespace, fingerprint string) (*engine.EngineResult, bool) {
	c.mu.RLock()
	entry, ok := c.store[namespace][fingerprint]
	c.mu.RUnlock()

	if !ok || entry.ExpiresAt.Before(time.Now()) {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	atomic.AddInt64(&entry.HitCount, 1)
	result := entry.Result
	return &result, true
}

// Put stores a result, evicting the oldest entry in the namespace if the
// namespace is at capacity.
func (c *Cache) Put(namespace, fingerprint string, result engine.EngineResult, ttl ...time.Duration) {
	effectiveTTL := c.config.DefaultTTL
	if len(ttl) > 0 {
		effectiveTTL = ttl[0]
	}

	now := time.Now()
	entry := &Entry{
		Fingerprint: fingerprint,
		Namespace:   namespace,
		Result:      result,
		CreatedAt:   now,
		ExpiresAt:   now.Add(effectiveTTL),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.store[namespace]
	if !ok {
		ns = make(map[string]*Entry)
		c.store[namespace] = ns
	}
	if len(ns) >= c.config.MaxEntries {
		c.evictOldestLocked(namespace)
	}
	ns[fingerprint] = entry

	c.logger.Debug().
		Str("namespace", namespace).
		Str("fingerprint", fingerprint[:12]).
		Msg("cached evaluate result")
}

// Invalidate removes one cached entry.
func (c *Cache) Invalidate(namespace, fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.store[namespace]
	if !ok {
		return false
	}
	if _, ok := ns[fingerprint]; !ok {
		return false
	}
	delete(ns, fingerprint)
	atomic.AddInt64(&c.evictions, 1)
	return true
}

// FlushNamespace removes every entry for a project/namespace — used when
// an experiment's config changes in a way the caller knows invalidates
// history (e.g. a manual prior override).
func (c *Cache) FlushNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.store[namespace]
	if !ok {
		return 0
	}
	count := len(ns)
	delete(c.store, namespace)
	atomic.AddInt64(&c.evictions, int64(count))
	return count
}

// FlushAll clears the entire cache.
func (c *Cache) FlushAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, ns := range c.store {
		total += len(ns)
	}
	c.store = make(map[string]map[string]*Entry)
	atomic.AddInt64(&c.evictions, int64(total))
	return total
}

// Stats returns current cache performance metrics.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	evictions := atomic.LoadInt64(&c.evictions)

	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	c.mu.RLock()
	var entries int64
	for _, ns := range c.store {
		entries += int64(len(ns))
	}
	c.mu.RUnlock()

	return Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: evictions,
		Entries:   entries,
		HitRate:   hitRate,
	}
}

func (c *Cache) evictOldestLocked(namespace string) {
	ns := c.store[namespace]
	if len(ns) == 0 {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range ns {
		if first || e.CreatedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.CreatedAt
			first = false
		}
	}
	delete(ns, oldestKey)
	atomic.AddInt64(&c.evictions, 1)
}
