package backup

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"crosstalk/go-backend/pkg/models"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	blobVersion = 1
	saltSize    = 16

	kdfTime     = uint32(2)
	kdfMemoryKB = uint32(64 * 1024)
	kdfThreads  = uint8(1)

	// Upper bound on the memory cost a blob may request, so a hostile
	// header cannot force a multi-GB derivation.
	maxKDFMemoryKB = uint32(1024 * 1024)

	maxFailedAttempts = 5
	attemptLockWindow = 5 * time.Minute
)

var (
	// ErrAuthFailed covers wrong password and corrupted ciphertext alike;
	// the AEAD cannot tell the two apart.
	ErrAuthFailed      = errors.New("backup authentication failed")
	ErrInvalidBlob     = errors.New("backup blob is invalid")
	ErrNoKeys          = errors.New("no key material for identity")
	ErrPasswordLocked  = errors.New("password attempts are temporarily locked")
	ErrPasswordMissing = errors.New("password is required")
)

// KeyVault is the key store surface the controller needs. Install must
// validate before persisting so a failed import never leaves partial state.
type KeyVault interface {
	SnapshotKeys(address string) (models.IdentityKeyPair, models.SigningKeyPair, bool)
	InstallKeys(address string, identity models.IdentityKeyPair, signing models.SigningKeyPair) error
}

type backupPayload struct {
	Version  int                    `json:"version"`
	Identity models.IdentityKeyPair `json:"identity"`
	Signing  models.SigningKeyPair  `json:"signing"`
}

// Controller exports and imports private key material as password-protected
// blobs. It never talks to the directory; re-registering a restored public
// key is the caller's concern.
type Controller struct {
	vault KeyVault

	mu             sync.Mutex
	failedAttempts int
	lockedUntil    time.Time
	now            func() time.Time
}

func NewController(vault KeyVault) *Controller {
	return &Controller{vault: vault, now: time.Now}
}

func newControllerWithClock(vault KeyVault, now func() time.Time) *Controller {
	return &Controller{vault: vault, now: now}
}

// Export serializes the identity's key pairs and seals them under a key
// derived from the password. The argon2id salt is generated fresh per backup
// and stored in the blob.
func (c *Controller) Export(address, password string) (models.BackupBlob, error) {
	if strings.TrimSpace(password) == "" {
		return models.BackupBlob{}, ErrPasswordMissing
	}
	identity, signing, ok := c.vault.SnapshotKeys(address)
	if !ok {
		return models.BackupBlob{}, ErrNoKeys
	}

	payload, err := json.Marshal(backupPayload{Version: blobVersion, Identity: identity, Signing: signing})
	if err != nil {
		return models.BackupBlob{}, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return models.BackupBlob{}, err
	}
	key := deriveKey(password, salt, kdfTime, kdfMemoryKB, kdfThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return models.BackupBlob{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return models.BackupBlob{}, err
	}

	return models.BackupBlob{
		Version:     blobVersion,
		Identity:    address,
		KDF:         "argon2id",
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, payload, nil),
		CreatedAt:   c.now().UTC(),
	}, nil
}

// Import decrypts and validates a blob, then installs the restored material
// as the active pairs for the blob's identity. Every structural or
// cryptographic failure fails closed: nothing is installed.
func (c *Controller) Import(blob models.BackupBlob, password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordMissing
	}
	if err := c.checkAttemptLock(); err != nil {
		return err
	}
	if blob.Version != blobVersion || blob.KDF != "argon2id" || strings.TrimSpace(blob.Identity) == "" {
		return ErrInvalidBlob
	}
	// Honor the blob's stored parameters but refuse a weakened or absurd
	// derivation before any of them reach argon2 or the AEAD.
	if blob.KDFTime < kdfTime || blob.KDFMemoryKB < kdfMemoryKB || blob.KDFMemoryKB > maxKDFMemoryKB || blob.KDFThreads < 1 {
		return ErrInvalidBlob
	}
	if len(blob.Salt) != saltSize || len(blob.Nonce) != chacha20poly1305.NonceSizeX {
		return ErrInvalidBlob
	}

	key := deriveKey(password, blob.Salt, blob.KDFTime, blob.KDFMemoryKB, blob.KDFThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return ErrInvalidBlob
	}
	payload, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		c.recordFailedAttempt()
		return ErrAuthFailed
	}
	c.resetAttempts()

	var restored backupPayload
	if err := json.Unmarshal(payload, &restored); err != nil {
		return ErrInvalidBlob
	}
	if restored.Version != blobVersion || len(restored.Identity.PrivateKey) == 0 || len(restored.Identity.PublicKey) == 0 {
		return ErrInvalidBlob
	}
	if err := c.vault.InstallKeys(blob.Identity, restored.Identity, restored.Signing); err != nil {
		return ErrInvalidBlob
	}
	return nil
}

func (c *Controller) checkAttemptLock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.lockedUntil) {
		return ErrPasswordLocked
	}
	return nil
}

func (c *Controller) recordFailedAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedAttempts++
	if c.failedAttempts >= maxFailedAttempts {
		c.lockedUntil = c.now().Add(attemptLockWindow)
		c.failedAttempts = 0
	}
}

func (c *Controller) resetAttempts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedAttempts = 0
	c.lockedUntil = time.Time{}
}

func deriveKey(password string, salt []byte, kdfTime, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(password), salt, kdfTime, memoryKB, threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
