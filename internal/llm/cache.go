package llm

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the response cache when no size is configured
const DefaultCacheSize = 200

// ResponseCache is a bounded, process-wide store of model responses. It is
// safe for concurrent use and is shared by reference between clients.
// Least recently used entries are evicted first.
type ResponseCache struct {
	entries *lru.Cache[string, Response]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewResponseCache creates a cache holding at most size responses
func NewResponseCache(size int) (*ResponseCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, Response](size)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &ResponseCache{entries: entries}, nil
}

// CacheKey fingerprints the inputs that determine a response.
// An image, when present, is folded into the fingerprint so that the same
// prompt against different pictures never collides.
func CacheKey(prompt, modelID string, temperature float64, maxTokens int, image string) string {
	raw := prompt + "|" + modelID + "|" + strconv.FormatFloat(temperature, 'f', -1, 64) + "|" + strconv.Itoa(maxTokens)
	if image != "" {
		imageSum := md5.Sum([]byte(image))
		raw += "|" + hex.EncodeToString(imageSum[:])
	}
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for key
func (c *ResponseCache) Get(key string) (Response, bool) {
	resp, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return resp, ok
}

// Put stores resp under key, evicting the least recently used entry when full
func (c *ResponseCache) Put(key string, resp Response) {
	c.entries.Add(key, resp)
}

// Len returns the number of cached responses
func (c *ResponseCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry
func (c *ResponseCache) Purge() {
	c.entries.Purge()
}

// CacheStats is a point-in-time view of cache effectiveness
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Stats returns the current hit/miss counters
func (c *ResponseCache) Stats() CacheStats {
	return CacheStats{
		Entries: c.entries.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
