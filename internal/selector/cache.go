package selector

import (
	"net/url"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheCapacity is the suggested LRU capacity from spec §4.B.
const DefaultCacheCapacity = 10000

// TemplateCache amortizes URI-template-to-pattern compilation across
// repeated Compile calls for the same template string. A compiled
// pattern depends on the template text and on the base URL it was
// resolved against, so entries are keyed by both.
type TemplateCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewTemplateCache creates a cache with the given capacity. A capacity
// of zero or less falls back to DefaultCacheCapacity.
func NewTemplateCache(capacity int) *TemplateCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c, _ := lru.New(capacity) // lru.New only errors on capacity <= 0, already guarded above
	return &TemplateCache{cache: c}
}

// defaultCache backs the package-level CompileCached helper.
var defaultCache = NewTemplateCache(DefaultCacheCapacity)

// Compile compiles topic using this cache for the (potentially
// expensive) template-to-pattern conversion step. Wildcard and literal
// selectors bypass the cache entirely since they carry no compiled
// pattern.
func (c *TemplateCache) Compile(topic string, base *url.URL) (*Selector, error) {
	if topic == "*" || !containsTemplateExpression(topic) {
		return Compile(topic, base)
	}

	key := topic
	if base != nil {
		key = base.String() + "\x00" + topic
	}

	c.mu.Lock()
	if cached, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		return cached.(*Selector), nil
	}
	c.mu.Unlock()

	compiled, err := Compile(topic, base)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, compiled)
	c.mu.Unlock()
	return compiled, nil
}

// CompileCached compiles topic using the package-wide default cache.
func CompileCached(topic string, base *url.URL) (*Selector, error) {
	return defaultCache.Compile(topic, base)
}
