package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// CachedResponse represents a cached API response
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Cache is a TTL response cache. A zero TTL never expires entries.
type Cache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// Get returns a cached response that has not expired.
func (c *Cache) Get(key string) (string, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	cached := val.(CachedResponse)
	if c.ttl > 0 && c.now().Sub(cached.Timestamp) > c.ttl {
		c.entries.Delete(key)
		return "", false
	}
	return cached.Response, true
}

// Put stores a response.
func (c *Cache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: c.now(),
	})
}

// GenerateCacheKey generates a cache key from transcript messages
func GenerateCacheKey(messages []transcript.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role()))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// KeyOf generates a cache key from arbitrary parts.
func KeyOf(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
