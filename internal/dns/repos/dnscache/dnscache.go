// Package dnscache provides an in-memory, LRU-bounded, TTL-aware cache of
// complete resolved answers (answers, authority, and additional sections
// together), keyed by question.
package dnscache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// TTL is the fixed lifetime applied to every stored entry, independent of
// the TTLs carried by the individual resource records within it. This is a
// deliberate divergence from per-record TTL caching.
const TTL = 300 * time.Second

// Entry is the complete cached result for one question: the three RFC 1035
// response sections plus the absolute time at which the entry expires.
type Entry struct {
	Answers    []domain.ResourceRecord
	Authority  []domain.ResourceRecord
	Additional []domain.ResourceRecord
	ExpiresAt  time.Time
}

// isExpired reports whether the entry has passed its expiration relative to
// now. An entry is valid only while ExpiresAt is strictly after now, so
// now == ExpiresAt already counts as expired.
func (e Entry) isExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// dnsCache is an in-memory, LRU-bounded, TTL-aware cache of resolved results.
type dnsCache struct {
	lru *lru.Cache[string, Entry]
}

// New returns a new dnsCache instance of the given size using an LRU backing store.
func New(size int) (*dnsCache, error) {
	cache, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &dnsCache{lru: cache}, nil
}

// Store replaces whatever entry previously existed for key with a fresh one
// carrying a flat TTL from now. Entries are never merged.
func (c *dnsCache) Store(key string, answers, authority, additional []domain.ResourceRecord, now time.Time) {
	c.lru.Add(key, Entry{
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
		ExpiresAt:  now.Add(TTL),
	})
}

// Lookup returns the cached entry for key if present and not expired. An
// expired entry is purged from the cache on access.
func (c *dnsCache) Lookup(key string, now time.Time) (Entry, bool) {
	entry, found := c.lru.Get(key)
	if !found {
		return Entry{}, false
	}
	if entry.isExpired(now) {
		c.lru.Remove(key)
		return Entry{}, false
	}
	return entry, true
}

// Delete removes the entry for the given key from the cache.
func (c *dnsCache) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of cache entries currently stored.
func (c *dnsCache) Len() int {
	return c.lru.Len()
}

// Keys returns a slice of all current cache keys.
func (c *dnsCache) Keys() []string {
	return c.lru.Keys()
}
