package keycache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how long a resolved counterparty key is served without a
// fresh directory fetch.
const DefaultTTL = 5 * time.Minute

// Entry is one cached resolution. Entries are advisory only: a stale entry is
// never more authoritative than a successful fresh fetch.
type Entry struct {
	PublicKey        []byte
	SigningPublicKey []byte
	CachedAt         time.Time
}

type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]Entry
}

func New(ttl time.Duration) *Cache {
	return newWithClock(ttl, time.Now)
}

func newWithClock(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:   ttl,
		now:   now,
		items: map[string]Entry{},
	}
}

// Get returns the cached entry for address, evicting it first when it has
// aged past the TTL.
func (c *Cache) Get(address string) (Entry, bool) {
	address = strings.TrimSpace(address)
	if c == nil || address == "" {
		return Entry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[address]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(entry.CachedAt) > c.ttl {
		delete(c.items, address)
		return Entry{}, false
	}
	return Entry{
		PublicKey:        append([]byte(nil), entry.PublicKey...),
		SigningPublicKey: append([]byte(nil), entry.SigningPublicKey...),
		CachedAt:         entry.CachedAt,
	}, true
}

// Put overwrites unconditionally; last write wins.
func (c *Cache) Put(address string, publicKey, signingPublicKey []byte) {
	address = strings.TrimSpace(address)
	if c == nil || address == "" || len(publicKey) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[address] = Entry{
		PublicKey:        append([]byte(nil), publicKey...),
		SigningPublicKey: append([]byte(nil), signingPublicKey...),
		CachedAt:         c.now(),
	}
}

func (c *Cache) Invalidate(address string) {
	address = strings.TrimSpace(address)
	if c == nil || address == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, address)
}

func (c *Cache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]Entry{}
}

// PurgeExpired drops every entry past the TTL in one sweep.
func (c *Cache) PurgeExpired() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for address, entry := range c.items {
		if now.Sub(entry.CachedAt) > c.ttl {
			delete(c.items, address)
		}
	}
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
