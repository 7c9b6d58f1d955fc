package directory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"crosstalk/go-backend/internal/keycache"
	"crosstalk/go-backend/pkg/models"
)

type fakeLocal struct {
	keys map[string][]byte
}

func (f *fakeLocal) OwnPublicKey(address string) ([]byte, bool) {
	key, ok := f.keys[address]
	return key, ok
}

type fakeRemote struct {
	entries      map[string]models.DirectoryEntry
	down         bool
	lookups      int
	batchCalls   int
	registered   map[string][]byte
	rotated      map[string][]byte
	registerFail bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		entries:    map[string]models.DirectoryEntry{},
		registered: map[string][]byte{},
		rotated:    map[string][]byte{},
	}
}

func (f *fakeRemote) Lookup(_ context.Context, address string) (models.DirectoryEntry, error) {
	f.lookups++
	if f.down {
		return models.DirectoryEntry{}, errors.New("connection refused")
	}
	entry, ok := f.entries[address]
	if !ok {
		return models.DirectoryEntry{}, ErrNotFound
	}
	return entry, nil
}

func (f *fakeRemote) LookupBatch(_ context.Context, addresses []string) (map[string]models.DirectoryEntry, error) {
	f.batchCalls++
	if f.down {
		return nil, errors.New("connection refused")
	}
	out := map[string]models.DirectoryEntry{}
	for _, address := range addresses {
		if entry, ok := f.entries[address]; ok {
			out[address] = entry
		}
	}
	return out, nil
}

func (f *fakeRemote) Register(_ context.Context, address string, publicKey, _ []byte) (bool, error) {
	if f.down || f.registerFail {
		return false, errors.New("connection refused")
	}
	f.registered[address] = append([]byte(nil), publicKey...)
	return true, nil
}

func (f *fakeRemote) Rotate(_ context.Context, address string, publicKey, _ []byte) error {
	if f.down {
		return errors.New("connection refused")
	}
	f.rotated[address] = append([]byte(nil), publicKey...)
	return nil
}

func newTestClient(t *testing.T, local *fakeLocal, remote *fakeRemote) (*Client, *keycache.Cache, *FallbackRegistry) {
	t.Helper()
	cache := keycache.New(5 * time.Minute)
	fallback, err := NewFallbackRegistry("", "")
	if err != nil {
		t.Fatalf("fallback registry failed: %v", err)
	}
	if local == nil {
		local = &fakeLocal{keys: map[string][]byte{}}
	}
	return NewClient(local, cache, remote, fallback, nil), cache, fallback
}

func TestResolveSelfSkipsNetwork(t *testing.T) {
	remote := newFakeRemote()
	local := &fakeLocal{keys: map[string][]byte{"ct1alice": {1, 2, 3}}}
	client, _, _ := newTestClient(t, local, remote)

	res, ok := client.ResolvePublicKey(context.Background(), "ct1alice")
	if !ok || res.Source != SourceSelf {
		t.Fatalf("expected self hit, got ok=%v source=%q", ok, res.Source)
	}
	if remote.lookups != 0 {
		t.Fatal("self resolution must not hit the remote")
	}
}

func TestResolveRemoteHitPopulatesCache(t *testing.T) {
	remote := newFakeRemote()
	remote.entries["ct1bob"] = models.DirectoryEntry{Address: "ct1bob", PublicKey: []byte{9, 9}}
	client, cache, _ := newTestClient(t, nil, remote)

	res, ok := client.ResolvePublicKey(context.Background(), "ct1bob")
	if !ok || res.Source != SourceRemote {
		t.Fatalf("expected remote hit, got ok=%v source=%q", ok, res.Source)
	}
	if _, ok := cache.Get("ct1bob"); !ok {
		t.Fatal("remote hit must populate the cache")
	}

	res, ok = client.ResolvePublicKey(context.Background(), "ct1bob")
	if !ok || res.Source != SourceCache {
		t.Fatalf("expected cache hit on second resolution, got source=%q", res.Source)
	}
	if remote.lookups != 1 {
		t.Fatalf("expected a single remote lookup, got %d", remote.lookups)
	}
}

func TestResolveDegradesToFallbackRegistry(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	client, _, fallback := newTestClient(t, nil, remote)
	if err := fallback.Put("ct1carol", []byte{7}, nil); err != nil {
		t.Fatalf("fallback put failed: %v", err)
	}

	res, ok := client.ResolvePublicKey(context.Background(), "ct1carol")
	if !ok || res.Source != SourceFallback {
		t.Fatalf("remote outage must degrade to fallback, got ok=%v source=%q", ok, res.Source)
	}
}

func TestResolveTotalMissIsNotAnError(t *testing.T) {
	client, _, _ := newTestClient(t, nil, newFakeRemote())
	if _, ok := client.ResolvePublicKey(context.Background(), "ct1nobody"); ok {
		t.Fatal("unknown address must miss")
	}
}

func TestResolveBatchPartialResults(t *testing.T) {
	remote := newFakeRemote()
	remote.entries["ct1bob"] = models.DirectoryEntry{Address: "ct1bob", PublicKey: []byte{1}}
	local := &fakeLocal{keys: map[string][]byte{"ct1alice": {2}}}
	client, cache, fallback := newTestClient(t, local, remote)
	cache.Put("ct1dan", []byte{3}, nil)
	if err := fallback.Put("ct1eve", []byte{4}, nil); err != nil {
		t.Fatalf("fallback put failed: %v", err)
	}

	got := client.ResolvePublicKeysBatch(context.Background(), []string{"ct1alice", "ct1bob", "ct1dan", "ct1eve", "ct1nobody"})
	if len(got) != 4 {
		t.Fatalf("expected 4 resolutions, got %d", len(got))
	}
	want := map[string]string{
		"ct1alice": SourceSelf,
		"ct1bob":   SourceRemote,
		"ct1dan":   SourceCache,
		"ct1eve":   SourceFallback,
	}
	for address, source := range want {
		if got[address].Source != source {
			t.Fatalf("%s resolved from %q, want %q", address, got[address].Source, source)
		}
	}
	if _, ok := got["ct1nobody"]; ok {
		t.Fatal("unresolvable address must be absent from the batch result")
	}
	if remote.batchCalls != 1 {
		t.Fatalf("expected one remote batch call, got %d", remote.batchCalls)
	}
}

func TestRegisterRemoteFailureStillWritesFallback(t *testing.T) {
	remote := newFakeRemote()
	remote.registerFail = true
	client, _, fallback := newTestClient(t, nil, remote)

	err := client.RegisterLocalPublicKey(context.Background(), "ct1alice", []byte{5}, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if pub, _, ok := fallback.Get("ct1alice"); !ok || !bytes.Equal(pub, []byte{5}) {
		t.Fatal("register must persist the key locally even when the remote is down")
	}
}

func TestPublishRotationInvalidatesCache(t *testing.T) {
	remote := newFakeRemote()
	client, cache, fallback := newTestClient(t, nil, remote)
	cache.Put("ct1alice", []byte{0xAA}, nil)

	if err := client.PublishRotation(context.Background(), "ct1alice", []byte{0xBB}, nil); err != nil {
		t.Fatalf("rotation publish failed: %v", err)
	}
	if entry, ok := cache.Get("ct1alice"); ok && bytes.Equal(entry.PublicKey, []byte{0xAA}) {
		t.Fatal("stale cache entry must not survive rotation")
	}
	if pub, _, ok := fallback.Get("ct1alice"); !ok || !bytes.Equal(pub, []byte{0xBB}) {
		t.Fatal("rotation must update the fallback registry")
	}
	if !bytes.Equal(remote.rotated["ct1alice"], []byte{0xBB}) {
		t.Fatal("rotation must use the dedicated rotate endpoint")
	}
}

func TestFallbackRegistryPersistence(t *testing.T) {
	path := t.TempDir() + "/fallback.enc"
	fallback, err := NewFallbackRegistry(path, "secret")
	if err != nil {
		t.Fatalf("registry init failed: %v", err)
	}
	if err := fallback.Put("ct1bob", []byte{1, 2}, []byte{3, 4}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	reloaded, err := NewFallbackRegistry(path, "secret")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	pub, signingPub, ok := reloaded.Get("ct1bob")
	if !ok || !bytes.Equal(pub, []byte{1, 2}) || !bytes.Equal(signingPub, []byte{3, 4}) {
		t.Fatalf("reloaded registry lost data: pub=%v signing=%v ok=%v", pub, signingPub, ok)
	}
}

func TestFallbackLearnKeepsRegisteredSigningKey(t *testing.T) {
	fallback, err := NewFallbackRegistry("", "")
	if err != nil {
		t.Fatalf("registry init failed: %v", err)
	}
	if err := fallback.Put("ct1bob", []byte{1}, []byte{9}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := fallback.Put("ct1bob", []byte{2}, nil); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	pub, signingPub, _ := fallback.Get("ct1bob")
	if !bytes.Equal(pub, []byte{2}) {
		t.Fatal("public key must be last-write-wins")
	}
	if !bytes.Equal(signingPub, []byte{9}) {
		t.Fatal("opportunistic learn must not erase the signing key")
	}
}
