package directory

import (
	"strings"
	"sync"
	"time"

	"crosstalk/go-backend/internal/securestore"
)

// FallbackRegistry is the device-local, unverified store of counterparty
// public keys learned opportunistically. It keeps peer-to-peer bootstrapping
// possible while the directory is unreachable.
type FallbackRegistry struct {
	mu      sync.Mutex
	path    string
	secret  string
	entries map[string]fallbackEntry
}

type fallbackEntry struct {
	PublicKey        []byte    `json:"public_key"`
	SigningPublicKey []byte    `json:"signing_public_key,omitempty"`
	LearnedAt        time.Time `json:"learned_at"`
}

type fallbackState struct {
	Version int                      `json:"version"`
	Entries map[string]fallbackEntry `json:"entries"`
}

// NewFallbackRegistry loads the persisted registry. With an unconfigured
// path/secret the registry is memory-only.
func NewFallbackRegistry(path, secret string) (*FallbackRegistry, error) {
	r := &FallbackRegistry{
		path:    strings.TrimSpace(path),
		secret:  strings.TrimSpace(secret),
		entries: map[string]fallbackEntry{},
	}
	if !securestore.IsConfigured(r.path, r.secret) {
		r.path, r.secret = "", ""
		return r, nil
	}
	var state fallbackState
	found, err := securestore.ReadDecryptedJSON(r.path, r.secret, &state)
	if err != nil {
		return nil, err
	}
	if found && state.Entries != nil {
		r.entries = state.Entries
	}
	return r, nil
}

func (r *FallbackRegistry) Get(address string) (publicKey, signingPublicKey []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[strings.TrimSpace(address)]
	if !ok || len(entry.PublicKey) == 0 {
		return nil, nil, false
	}
	return append([]byte(nil), entry.PublicKey...), append([]byte(nil), entry.SigningPublicKey...), true
}

// Put records a key, last write wins. Signing keys are only overwritten when
// the caller actually has one, so an opportunistic learn without signing
// material does not erase a previously registered signing key.
func (r *FallbackRegistry) Put(address string, publicKey, signingPublicKey []byte) error {
	address = strings.TrimSpace(address)
	if address == "" || len(publicKey) == 0 {
		return nil
	}
	r.mu.Lock()
	entry := fallbackEntry{
		PublicKey:        append([]byte(nil), publicKey...),
		SigningPublicKey: append([]byte(nil), signingPublicKey...),
		LearnedAt:        time.Now().UTC(),
	}
	if len(signingPublicKey) == 0 {
		if existing, ok := r.entries[address]; ok {
			entry.SigningPublicKey = existing.SigningPublicKey
		}
	}
	r.entries[address] = entry
	r.mu.Unlock()
	return r.save()
}

func (r *FallbackRegistry) Remove(address string) {
	address = strings.TrimSpace(address)
	r.mu.Lock()
	delete(r.entries, address)
	r.mu.Unlock()
	_ = r.save()
}

func (r *FallbackRegistry) save() error {
	r.mu.Lock()
	if r.path == "" {
		r.mu.Unlock()
		return nil
	}
	state := fallbackState{Version: 1, Entries: make(map[string]fallbackEntry, len(r.entries))}
	for address, entry := range r.entries {
		state.Entries[address] = entry
	}
	path, secret := r.path, r.secret
	r.mu.Unlock()
	return securestore.WriteEncryptedJSON(path, secret, state)
}
