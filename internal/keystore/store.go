package keystore

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"crosstalk/go-backend/pkg/models"

	"golang.org/x/crypto/curve25519"
)

var (
	ErrGeneration     = errors.New("key generation failed")
	ErrInvalidAddress = errors.New("invalid identity address")
	ErrInvalidKeyPair = errors.New("invalid key pair material")
)

// Registrar publishes a newly created public key to the directory. Remote
// failure is absorbed there (local fallback registry), so the store only
// logs it.
type Registrar interface {
	RegisterLocalPublicKey(ctx context.Context, address string, publicKey, signingPublicKey []byte) error
}

// Invalidator drops cached resolutions for an address after deletion or
// key replacement.
type Invalidator interface {
	Invalidate(address string)
}

// Store owns the local identities' key material. Creation is lazy and
// idempotent: concurrent EnsureIdentityKeys calls for one address are
// serialized by a per-identity lock so exactly one pair is ever created.
type Store struct {
	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	identities map[string]models.IdentityKeyPair
	signing    map[string]models.SigningKeyPair

	persist     *StateStore
	registrar   Registrar
	invalidator Invalidator
	logger      *slog.Logger

	genIdentity func() (models.IdentityKeyPair, error)
	genSigning  func() (models.SigningKeyPair, error)
}

func NewStore(persist *StateStore, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		locks:       map[string]*sync.Mutex{},
		identities:  map[string]models.IdentityKeyPair{},
		signing:     map[string]models.SigningKeyPair{},
		persist:     persist,
		logger:      logger,
		genIdentity: newIdentityKeyPair,
		genSigning:  newSigningKeyPair,
	}
	if persist != nil {
		state, found, err := persist.Load()
		if err != nil {
			return nil, err
		}
		if found {
			s.identities = state.Identities
			s.signing = state.Signing
		}
	}
	return s, nil
}

// SetRegistrar wires the directory client after construction; the directory
// needs the store for self-resolution, so the dependency runs both ways.
func (s *Store) SetRegistrar(r Registrar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrar = r
}

func (s *Store) SetInvalidator(inv Invalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidator = inv
}

// EnsureIdentityKeys returns the persisted identity pair, generating and
// registering a fresh one on first use. Generation failure is fatal to the
// call and never retried with weaker parameters.
func (s *Store) EnsureIdentityKeys(ctx context.Context, address string) (models.IdentityKeyPair, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.IdentityKeyPair{}, ErrInvalidAddress
	}
	lock := s.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	pair, ok := s.identities[address]
	s.mu.Unlock()
	if ok {
		return cloneIdentityPair(pair), nil
	}

	pair, err := s.genIdentity()
	if err != nil {
		return models.IdentityKeyPair{}, err
	}
	s.mu.Lock()
	s.identities[address] = pair
	registrar := s.registrar
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return models.IdentityKeyPair{}, err
	}
	if registrar != nil {
		signingPub := s.signingPublicKey(address)
		if err := registrar.RegisterLocalPublicKey(ctx, address, pair.PublicKey, signingPub); err != nil {
			s.logger.Warn("directory registration deferred", "address", address, "reason", err.Error())
		}
	}
	return cloneIdentityPair(pair), nil
}

// EnsureSigningKeys follows the same contract with independent material.
func (s *Store) EnsureSigningKeys(ctx context.Context, address string) (models.SigningKeyPair, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.SigningKeyPair{}, ErrInvalidAddress
	}
	lock := s.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	pair, ok := s.signing[address]
	s.mu.Unlock()
	if ok {
		return cloneSigningPair(pair), nil
	}

	pair, err := s.genSigning()
	if err != nil {
		return models.SigningKeyPair{}, err
	}
	s.mu.Lock()
	s.signing[address] = pair
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return models.SigningKeyPair{}, err
	}
	return cloneSigningPair(pair), nil
}

// ReplaceKeys generates brand-new identity and signing pairs and installs
// them together, discarding the old ones. Both pairs are generated before
// either is stored, so a generation failure leaves the previous state
// untouched. Used by rotation; publishing the new keys is the caller's
// concern.
func (s *Store) ReplaceKeys(ctx context.Context, address string) (models.IdentityKeyPair, models.SigningKeyPair, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.IdentityKeyPair{}, models.SigningKeyPair{}, ErrInvalidAddress
	}
	lock := s.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	idPair, err := s.genIdentity()
	if err != nil {
		return models.IdentityKeyPair{}, models.SigningKeyPair{}, err
	}
	signPair, err := s.genSigning()
	if err != nil {
		return models.IdentityKeyPair{}, models.SigningKeyPair{}, err
	}

	s.mu.Lock()
	s.identities[address] = idPair
	s.signing[address] = signPair
	s.mu.Unlock()
	if err := s.save(); err != nil {
		return models.IdentityKeyPair{}, models.SigningKeyPair{}, err
	}
	return cloneIdentityPair(idPair), cloneSigningPair(signPair), nil
}

// DeleteIdentityKeys irreversibly discards both pairs for the address and
// invalidates cached resolutions. Caller confirmation happens a layer up.
func (s *Store) DeleteIdentityKeys(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrInvalidAddress
	}
	lock := s.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	delete(s.identities, address)
	delete(s.signing, address)
	invalidator := s.invalidator
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return err
	}
	if invalidator != nil {
		invalidator.Invalidate(address)
	}
	s.logger.Info("identity keys deleted", "address", address)
	return nil
}

// OwnPublicKey reports the local identity public key without generating one.
// The directory client uses it to short-circuit self-resolution.
func (s *Store) OwnPublicKey(address string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.identities[strings.TrimSpace(address)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), pair.PublicKey...), true
}

// IdentityKeys returns the stored pair without creating one.
func (s *Store) IdentityKeys(address string) (models.IdentityKeyPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.identities[strings.TrimSpace(address)]
	if !ok {
		return models.IdentityKeyPair{}, false
	}
	return cloneIdentityPair(pair), true
}

// SnapshotKeys returns both pairs for backup export.
func (s *Store) SnapshotKeys(address string) (models.IdentityKeyPair, models.SigningKeyPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = strings.TrimSpace(address)
	idPair, ok := s.identities[address]
	if !ok {
		return models.IdentityKeyPair{}, models.SigningKeyPair{}, false
	}
	return cloneIdentityPair(idPair), cloneSigningPair(s.signing[address]), true
}

// InstallKeys persists restored key material as the active pairs for the
// address. Material is validated before anything is overwritten.
func (s *Store) InstallKeys(address string, identity models.IdentityKeyPair, signing models.SigningKeyPair) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrInvalidAddress
	}
	if len(identity.PrivateKey) != curve25519.ScalarSize || len(identity.PublicKey) != curve25519.PointSize {
		return ErrInvalidKeyPair
	}
	if len(signing.SigningPrivateKey) > 0 &&
		(len(signing.SigningPrivateKey) != ed25519.PrivateKeySize || len(signing.SigningPublicKey) != ed25519.PublicKeySize) {
		return ErrInvalidKeyPair
	}
	lock := s.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	s.identities[address] = cloneIdentityPair(identity)
	if len(signing.SigningPrivateKey) > 0 {
		s.signing[address] = cloneSigningPair(signing)
	}
	invalidator := s.invalidator
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return err
	}
	if invalidator != nil {
		invalidator.Invalidate(address)
	}
	return nil
}

func (s *Store) lockFor(address string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[address] = lock
	}
	return lock
}

func (s *Store) signingPublicKey(address string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.signing[address]
	if !ok {
		return nil
	}
	return append([]byte(nil), pair.SigningPublicKey...)
}

func (s *Store) save() error {
	if s.persist == nil {
		return nil
	}
	s.mu.Lock()
	state := persistedState{
		Version:    stateVersion,
		Identities: map[string]models.IdentityKeyPair{},
		Signing:    map[string]models.SigningKeyPair{},
	}
	for address, pair := range s.identities {
		state.Identities[address] = cloneIdentityPair(pair)
	}
	for address, pair := range s.signing {
		state.Signing[address] = cloneSigningPair(pair)
	}
	s.mu.Unlock()
	return s.persist.Save(state)
}
