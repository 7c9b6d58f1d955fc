package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"crosstalk/go-backend/pkg/models"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

const addressPrefix = "ct1"

// newIdentityKeyPair generates a fresh X25519 key pair for message
// confidentiality.
func newIdentityKeyPair() (models.IdentityKeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return models.IdentityKeyPair{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return models.IdentityKeyPair{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return models.IdentityKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// newSigningKeyPair generates a fresh Ed25519 key pair. Signing material is
// independent from the identity pair and never used for confidentiality.
func newSigningKeyPair() (models.SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return models.SigningKeyPair{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return models.SigningKeyPair{
		SigningPublicKey:  append([]byte(nil), pub...),
		SigningPrivateKey: append([]byte(nil), priv...),
	}, nil
}

// BuildAddress derives the canonical address for a signing public key.
func BuildAddress(signingPublicKey []byte) (string, error) {
	if len(signingPublicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid signing public key size: %d", len(signingPublicKey))
	}
	h := blake2b.Sum256(signingPublicKey)
	return addressPrefix + base58.Encode(h[:]), nil
}

func cloneIdentityPair(pair models.IdentityKeyPair) models.IdentityKeyPair {
	return models.IdentityKeyPair{
		PublicKey:  append([]byte(nil), pair.PublicKey...),
		PrivateKey: append([]byte(nil), pair.PrivateKey...),
	}
}

func cloneSigningPair(pair models.SigningKeyPair) models.SigningKeyPair {
	return models.SigningKeyPair{
		SigningPublicKey:  append([]byte(nil), pair.SigningPublicKey...),
		SigningPrivateKey: append([]byte(nil), pair.SigningPrivateKey...),
	}
}
