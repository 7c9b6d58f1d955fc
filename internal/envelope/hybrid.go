package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Algorithm identifies the hybrid construction carried in envelope metadata.
const Algorithm = "x25519-chacha20poly1305"

const (
	messageKeySize   = chacha20poly1305.KeySize
	messageNonceSize = chacha20poly1305.NonceSize
	wrapNonceSize    = chacha20poly1305.NonceSizeX
	wrapOverhead     = chacha20poly1305.Overhead
	// encryptedKey layout: ephemeral public key, wrap nonce, sealed message key.
	encryptedKeySize = curve25519.PointSize + wrapNonceSize + messageKeySize + wrapOverhead

	wrapInfo = "crosstalk/envelope/wrap/v1"
)

var (
	ErrFormat       = errors.New("malformed envelope")
	ErrCrypto       = errors.New("envelope crypto failure")
	ErrNoPrivateKey = errors.New("private key unavailable")
)

var payloadAAD = []byte(Algorithm)

// seal encrypts plaintext under a fresh message key and wraps that key for
// the recipient: ephemeral X25519 against the recipient key, HKDF-SHA256 to
// a wrap key, XChaCha20-Poly1305 over the message key.
func seal(plaintext, recipientPublicKey []byte) (ciphertext, nonce, encryptedKey []byte, err error) {
	if len(recipientPublicKey) != curve25519.PointSize {
		return nil, nil, nil, ErrCrypto
	}

	messageKey := make([]byte, messageKeySize)
	if _, err := rand.Read(messageKey); err != nil {
		return nil, nil, nil, err
	}
	defer zeroBytes(messageKey)

	aead, err := chacha20poly1305.New(messageKey)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, messageNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, payloadAAD)

	encryptedKey, err = wrapKey(messageKey, recipientPublicKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return ciphertext, nonce, encryptedKey, nil
}

// open validates envelope field lengths, unwraps the message key with the
// local private key and decrypts the payload. Length violations are
// ErrFormat; AEAD and ECDH failures are ErrCrypto.
func open(ciphertext, nonce, encryptedKey, ownPrivateKey []byte) ([]byte, error) {
	if len(nonce) != messageNonceSize || len(encryptedKey) != encryptedKeySize || len(ciphertext) < wrapOverhead {
		return nil, ErrFormat
	}
	if len(ownPrivateKey) != curve25519.ScalarSize {
		return nil, ErrNoPrivateKey
	}

	messageKey, err := unwrapKey(encryptedKey, ownPrivateKey)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(messageKey)

	aead, err := chacha20poly1305.New(messageKey)
	if err != nil {
		return nil, ErrCrypto
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, payloadAAD)
	if err != nil {
		return nil, ErrCrypto
	}
	return plaintext, nil
}

func wrapKey(messageKey, recipientPublicKey []byte) ([]byte, error) {
	ephemeralPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephemeralPriv); err != nil {
		return nil, err
	}
	defer zeroBytes(ephemeralPriv)
	ephemeralPub, err := curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		return nil, ErrCrypto
	}
	shared, err := curve25519.X25519(ephemeralPriv, recipientPublicKey)
	if err != nil {
		return nil, ErrCrypto
	}
	defer zeroBytes(shared)

	wrapKey, err := deriveWrapKey(shared)
	if err != nil {
		return nil, ErrCrypto
	}
	defer zeroBytes(wrapKey)

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, ErrCrypto
	}
	wrapNonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(wrapNonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, wrapNonce, messageKey, nil)

	out := make([]byte, 0, encryptedKeySize)
	out = append(out, ephemeralPub...)
	out = append(out, wrapNonce...)
	out = append(out, sealed...)
	return out, nil
}

func unwrapKey(encryptedKey, ownPrivateKey []byte) ([]byte, error) {
	ephemeralPub := encryptedKey[:curve25519.PointSize]
	wrapNonce := encryptedKey[curve25519.PointSize : curve25519.PointSize+wrapNonceSize]
	sealed := encryptedKey[curve25519.PointSize+wrapNonceSize:]

	shared, err := curve25519.X25519(ownPrivateKey, ephemeralPub)
	if err != nil {
		return nil, ErrCrypto
	}
	defer zeroBytes(shared)

	wrapKey, err := deriveWrapKey(shared)
	if err != nil {
		return nil, ErrCrypto
	}
	defer zeroBytes(wrapKey)

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, ErrCrypto
	}
	messageKey, err := aead.Open(nil, wrapNonce, sealed, nil)
	if err != nil {
		return nil, ErrCrypto
	}
	return messageKey, nil
}

func deriveWrapKey(shared []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, shared, nil, []byte(wrapInfo))
	out := make([]byte, messageKeySize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
