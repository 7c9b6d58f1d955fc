package keystore

import (
	"errors"
	"strings"
	"sync"

	"crosstalk/go-backend/internal/securestore"
	"crosstalk/go-backend/pkg/models"
)

const stateVersion = 1

type persistedState struct {
	Version    int                               `json:"version"`
	Identities map[string]models.IdentityKeyPair `json:"identities"`
	Signing    map[string]models.SigningKeyPair  `json:"signing"`
}

// StateStore snapshots the key store to an encrypted file. A nil StateStore
// (or an unconfigured one) keeps the store memory-only.
type StateStore struct {
	mu     sync.Mutex
	path   string
	secret string
}

func NewStateStore(path, secret string) *StateStore {
	path = strings.TrimSpace(path)
	secret = strings.TrimSpace(secret)
	if !securestore.IsConfigured(path, secret) {
		return nil
	}
	return &StateStore{path: path, secret: secret}
}

func (s *StateStore) Load() (persistedState, bool, error) {
	if s == nil {
		return persistedState{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var state persistedState
	found, err := securestore.ReadDecryptedJSON(s.path, s.secret, &state)
	if err != nil || !found {
		return persistedState{}, false, err
	}
	if state.Version != stateVersion {
		return persistedState{}, false, errors.New("keystore persistence payload is invalid")
	}
	if state.Identities == nil {
		state.Identities = map[string]models.IdentityKeyPair{}
	}
	if state.Signing == nil {
		state.Signing = map[string]models.SigningKeyPair{}
	}
	return state, true, nil
}

func (s *StateStore) Save(state persistedState) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return securestore.WriteEncryptedJSON(s.path, s.secret, state)
}
