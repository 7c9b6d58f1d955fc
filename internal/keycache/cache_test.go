package keycache

import (
	"testing"
	"time"
)

func TestGetEvictsExpiredEntry(t *testing.T) {
	current := time.Unix(1700000000, 0)
	cache := newWithClock(5*time.Minute, func() time.Time { return current })

	cache.Put("ct1bob", []byte{1, 2, 3}, nil)
	if _, ok := cache.Get("ct1bob"); !ok {
		t.Fatal("fresh entry should be returned")
	}

	current = current.Add(5*time.Minute + time.Second)
	if _, ok := cache.Get("ct1bob"); ok {
		t.Fatal("expired entry must be treated as absent")
	}
	if cache.Len() != 0 {
		t.Fatalf("expired entry should be evicted, len=%d", cache.Len())
	}
}

func TestPutOverwritesLastWriteWins(t *testing.T) {
	cache := New(time.Minute)
	cache.Put("ct1bob", []byte{1}, nil)
	cache.Put("ct1bob", []byte{2}, []byte{9})

	entry, ok := cache.Get("ct1bob")
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.PublicKey[0] != 2 || len(entry.SigningPublicKey) != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	cache := New(time.Minute)
	cache.Put("ct1bob", []byte{1, 2, 3}, nil)

	entry, _ := cache.Get("ct1bob")
	entry.PublicKey[0] = 0xFF

	again, _ := cache.Get("ct1bob")
	if again.PublicKey[0] != 1 {
		t.Fatal("cache entry must be immutable once written")
	}
}

func TestInvalidate(t *testing.T) {
	cache := New(time.Minute)
	cache.Put("ct1bob", []byte{1}, nil)
	cache.Put("ct1carol", []byte{2}, nil)

	cache.Invalidate("ct1bob")
	if _, ok := cache.Get("ct1bob"); ok {
		t.Fatal("invalidated entry should be absent")
	}
	if _, ok := cache.Get("ct1carol"); !ok {
		t.Fatal("other entries must survive single invalidation")
	}

	cache.InvalidateAll()
	if cache.Len() != 0 {
		t.Fatalf("InvalidateAll should empty the cache, len=%d", cache.Len())
	}
}

func TestPurgeExpired(t *testing.T) {
	current := time.Unix(1700000000, 0)
	cache := newWithClock(time.Minute, func() time.Time { return current })

	cache.Put("ct1old", []byte{1}, nil)
	current = current.Add(30 * time.Second)
	cache.Put("ct1new", []byte{2}, nil)
	current = current.Add(45 * time.Second)

	cache.PurgeExpired()
	if _, ok := cache.Get("ct1old"); ok {
		t.Fatal("old entry should be purged")
	}
	if _, ok := cache.Get("ct1new"); !ok {
		t.Fatal("new entry should survive purge")
	}
}

func TestEmptyAddressIgnored(t *testing.T) {
	cache := New(time.Minute)
	cache.Put("  ", []byte{1}, nil)
	if cache.Len() != 0 {
		t.Fatal("blank address must not be cached")
	}
	if _, ok := cache.Get(""); ok {
		t.Fatal("blank address must not resolve")
	}
}
