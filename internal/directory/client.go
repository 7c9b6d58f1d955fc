package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"crosstalk/go-backend/internal/keycache"
	"crosstalk/go-backend/pkg/models"
)

var (
	// ErrUnavailable marks remote directory failures. Never fatal for
	// resolution; resolution degrades down the fallback chain instead.
	ErrUnavailable = errors.New("directory unavailable")
	// ErrNotFound is the remote's definitive "no such identity" answer.
	ErrNotFound = errors.New("identity not registered")
)

// Resolution source tags, in chain order.
const (
	SourceSelf     = "self"
	SourceCache    = "cache"
	SourceRemote   = "remote"
	SourceFallback = "fallback"
)

// Resolution is one resolved counterparty key with the chain source that
// produced it.
type Resolution struct {
	PublicKey        []byte
	SigningPublicKey []byte
	Source           string
	Verified         bool
}

// LocalKeys exposes the local identities' public keys so self-resolution
// never round-trips.
type LocalKeys interface {
	OwnPublicKey(address string) ([]byte, bool)
}

// Remote abstracts the directory service HTTP API.
type Remote interface {
	Lookup(ctx context.Context, address string) (models.DirectoryEntry, error)
	LookupBatch(ctx context.Context, addresses []string) (map[string]models.DirectoryEntry, error)
	Register(ctx context.Context, address string, publicKey, signingPublicKey []byte) (verified bool, err error)
	Rotate(ctx context.Context, address string, publicKey, signingPublicKey []byte) error
}

// Client resolves counterparty keys through an ordered chain:
// self, cache, remote directory, local fallback registry. A miss is a miss,
// not an error.
type Client struct {
	local    LocalKeys
	cache    *keycache.Cache
	remote   Remote
	fallback *FallbackRegistry
	logger   *slog.Logger
}

func NewClient(local LocalKeys, cache *keycache.Cache, remote Remote, fallback *FallbackRegistry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		local:    local,
		cache:    cache,
		remote:   remote,
		fallback: fallback,
		logger:   logger,
	}
}

// ResolvePublicKey walks the chain and stops at the first hit. ok=false means
// "no key available"; callers fall back to unencrypted delivery.
func (c *Client) ResolvePublicKey(ctx context.Context, address string) (Resolution, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Resolution{}, false
	}

	if c.local != nil {
		if pub, ok := c.local.OwnPublicKey(address); ok {
			resolutionsTotal.WithLabelValues(SourceSelf).Inc()
			return Resolution{PublicKey: pub, Source: SourceSelf, Verified: true}, true
		}
	}

	if entry, ok := c.cache.Get(address); ok {
		resolutionsTotal.WithLabelValues(SourceCache).Inc()
		return Resolution{
			PublicKey:        entry.PublicKey,
			SigningPublicKey: entry.SigningPublicKey,
			Source:           SourceCache,
		}, true
	}

	if c.remote != nil {
		entry, err := c.remote.Lookup(ctx, address)
		switch {
		case err == nil:
			c.cache.Put(address, entry.PublicKey, entry.SigningPublicKey)
			resolutionsTotal.WithLabelValues(SourceRemote).Inc()
			return Resolution{
				PublicKey:        entry.PublicKey,
				SigningPublicKey: entry.SigningPublicKey,
				Source:           SourceRemote,
				Verified:         entry.Verified,
			}, true
		case errors.Is(err, ErrNotFound):
			// Definitive miss; still worth consulting the fallback registry.
		default:
			remoteFailuresTotal.Inc()
			c.logger.Warn("directory lookup degraded to fallback registry", "address", address, "reason", err.Error())
		}
	}

	if c.fallback != nil {
		if pub, signingPub, ok := c.fallback.Get(address); ok {
			c.cache.Put(address, pub, signingPub)
			resolutionsTotal.WithLabelValues(SourceFallback).Inc()
			return Resolution{
				PublicKey:        pub,
				SigningPublicKey: signingPub,
				Source:           SourceFallback,
			}, true
		}
	}

	resolutionMissesTotal.Inc()
	return Resolution{}, false
}

// ResolvePublicKeysBatch applies the chain in bulk, amortizing the remote
// round-trip for addresses that miss self and cache. Partial results are
// fine; missing addresses are simply absent from the map.
func (c *Client) ResolvePublicKeysBatch(ctx context.Context, addresses []string) map[string]Resolution {
	out := make(map[string]Resolution, len(addresses))
	residue := make([]string, 0, len(addresses))

	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if _, seen := out[address]; seen {
			continue
		}
		if c.local != nil {
			if pub, ok := c.local.OwnPublicKey(address); ok {
				resolutionsTotal.WithLabelValues(SourceSelf).Inc()
				out[address] = Resolution{PublicKey: pub, Source: SourceSelf, Verified: true}
				continue
			}
		}
		if entry, ok := c.cache.Get(address); ok {
			resolutionsTotal.WithLabelValues(SourceCache).Inc()
			out[address] = Resolution{
				PublicKey:        entry.PublicKey,
				SigningPublicKey: entry.SigningPublicKey,
				Source:           SourceCache,
			}
			continue
		}
		residue = append(residue, address)
	}
	if len(residue) == 0 {
		return out
	}

	var remoteEntries map[string]models.DirectoryEntry
	if c.remote != nil {
		entries, err := c.remote.LookupBatch(ctx, residue)
		if err != nil {
			remoteFailuresTotal.Inc()
			c.logger.Warn("directory batch lookup degraded to fallback registry", "count", len(residue), "reason", err.Error())
		} else {
			remoteEntries = entries
		}
	}
	for _, address := range residue {
		if entry, ok := remoteEntries[address]; ok && len(entry.PublicKey) > 0 {
			c.cache.Put(address, entry.PublicKey, entry.SigningPublicKey)
			resolutionsTotal.WithLabelValues(SourceRemote).Inc()
			out[address] = Resolution{
				PublicKey:        entry.PublicKey,
				SigningPublicKey: entry.SigningPublicKey,
				Source:           SourceRemote,
				Verified:         entry.Verified,
			}
			continue
		}
		if c.fallback != nil {
			if pub, signingPub, ok := c.fallback.Get(address); ok {
				c.cache.Put(address, pub, signingPub)
				resolutionsTotal.WithLabelValues(SourceFallback).Inc()
				out[address] = Resolution{
					PublicKey:        pub,
					SigningPublicKey: signingPub,
					Source:           SourceFallback,
				}
				continue
			}
		}
		resolutionMissesTotal.Inc()
	}
	return out
}

// RegisterLocalPublicKey publishes a newly created public key. On remote
// failure the key is still persisted to the fallback registry so
// peer-to-peer bootstrapping works offline; the wrapped error is returned
// for optional retry.
func (c *Client) RegisterLocalPublicKey(ctx context.Context, address string, publicKey, signingPublicKey []byte) error {
	address = strings.TrimSpace(address)
	if address == "" || len(publicKey) == 0 {
		return errors.New("register requires address and public key")
	}
	if c.fallback != nil {
		if err := c.fallback.Put(address, publicKey, signingPublicKey); err != nil {
			c.logger.Warn("fallback registry write failed", "address", address, "reason", err.Error())
		}
	}
	if c.remote == nil {
		return fmt.Errorf("%w: no remote configured", ErrUnavailable)
	}
	verified, err := c.remote.Register(ctx, address, publicKey, signingPublicKey)
	if err != nil {
		remoteFailuresTotal.Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logger.Info("public key registered", "address", address, "verified", verified)
	return nil
}

// PublishRotation pushes a rotated key through the dedicated rotation
// endpoint and drops any cached resolution of the address. Fallback registry
// and cache are updated even when the remote publish fails.
func (c *Client) PublishRotation(ctx context.Context, address string, publicKey, signingPublicKey []byte) error {
	address = strings.TrimSpace(address)
	if address == "" || len(publicKey) == 0 {
		return errors.New("rotation requires address and public key")
	}
	if c.fallback != nil {
		if err := c.fallback.Put(address, publicKey, signingPublicKey); err != nil {
			c.logger.Warn("fallback registry write failed", "address", address, "reason", err.Error())
		}
	}
	c.cache.Invalidate(address)
	if c.remote == nil {
		return fmt.Errorf("%w: no remote configured", ErrUnavailable)
	}
	if err := c.remote.Rotate(ctx, address, publicKey, signingPublicKey); err != nil {
		remoteFailuresTotal.Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logger.Info("public key rotation published", "address", address)
	return nil
}

// LearnPublicKey records an opportunistically observed key (envelope
// metadata) in the fallback registry. Learned keys are unverified and never
// override the cache.
func (c *Client) LearnPublicKey(address string, publicKey []byte) {
	address = strings.TrimSpace(address)
	if c.fallback == nil || address == "" || len(publicKey) == 0 {
		return
	}
	if err := c.fallback.Put(address, publicKey, nil); err != nil {
		c.logger.Warn("fallback registry write failed", "address", address, "reason", err.Error())
	}
}

// Invalidate satisfies the keystore's invalidator port.
func (c *Client) Invalidate(address string) {
	c.cache.Invalidate(address)
	if c.fallback != nil {
		c.fallback.Remove(address)
	}
}
