package backup

import (
	"errors"
	"strings"

	"crosstalk/go-backend/pkg/models"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/curve25519"
)

// ErrInvalidMnemonic rejects word lists that fail the BIP-39 checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// ExportMnemonic encodes the identity private key as a 24-word BIP-39
// mnemonic for paper backup. The words carry the raw private key: they are
// as sensitive as the key itself and carry no password protection.
func (c *Controller) ExportMnemonic(address string) (string, error) {
	identity, _, ok := c.vault.SnapshotKeys(address)
	if !ok {
		return "", ErrNoKeys
	}
	if len(identity.PrivateKey) != curve25519.ScalarSize {
		return "", ErrInvalidBlob
	}
	return bip39.NewMnemonic(identity.PrivateKey)
}

// ImportMnemonic restores the identity pair from a paper backup. The signing
// pair is not part of the mnemonic; a fresh one is created lazily on next
// use.
func (c *Controller) ImportMnemonic(address, mnemonic string) error {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	priv, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return ErrInvalidMnemonic
	}
	if len(priv) != curve25519.ScalarSize {
		return ErrInvalidMnemonic
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return ErrInvalidBlob
	}
	return c.vault.InstallKeys(address, models.IdentityKeyPair{PublicKey: pub, PrivateKey: priv}, models.SigningKeyPair{})
}
