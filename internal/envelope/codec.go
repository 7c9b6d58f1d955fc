package envelope

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"crosstalk/go-backend/internal/directory"
	"crosstalk/go-backend/pkg/models"
)

// Placeholder is shown in place of content that could not be decrypted.
const Placeholder = "[message could not be decrypted]"

// Fallback reasons carried in envelope metadata when confidentiality was not
// achieved. They make reduced confidentiality observable to the sender's UI.
const (
	ReasonNoPublicKey      = "no_public_key"
	ReasonEncryptionFailed = "encryption_failed"
)

// KeyResolver is the directory client surface the codec needs.
type KeyResolver interface {
	ResolvePublicKey(ctx context.Context, address string) (directory.Resolution, bool)
}

// KeyLearner records opportunistically observed sender keys.
type KeyLearner interface {
	LearnPublicKey(address string, publicKey []byte)
}

// OwnKeys is the key store surface the codec needs: lazy creation on the
// send path, plain access on the receive path.
type OwnKeys interface {
	EnsureIdentityKeys(ctx context.Context, address string) (models.IdentityKeyPair, error)
	IdentityKeys(address string) (models.IdentityKeyPair, bool)
}

// Codec performs hybrid envelope encryption between one sender and one
// recipient. Encryption never fails the send: unachievable confidentiality
// degrades to an explicitly flagged plaintext envelope.
type Codec struct {
	resolver KeyResolver
	keys     OwnKeys
	learner  KeyLearner
	logger   *slog.Logger
	now      func() time.Time
}

func NewCodec(resolver KeyResolver, keys OwnKeys, learner KeyLearner, logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{
		resolver: resolver,
		keys:     keys,
		learner:  learner,
		logger:   logger,
		now:      time.Now,
	}
}

// EncryptForRecipient produces the envelope for one message.
// Metadata.Encrypted is the single source of truth for whether
// confidentiality was achieved; both fallback paths return the plaintext
// verbatim with a reason flag instead of an error.
func (c *Codec) EncryptForRecipient(ctx context.Context, plaintext []byte, recipientAddress, senderAddress string) models.Envelope {
	var senderPublicKey []byte
	ownPair, err := c.keys.EnsureIdentityKeys(ctx, senderAddress)
	if err != nil {
		c.logger.Warn("sender key unavailable, sending unencrypted", "address", senderAddress, "reason", err.Error())
		return c.plaintextEnvelope(plaintext, nil, ReasonEncryptionFailed)
	}
	senderPublicKey = ownPair.PublicKey

	resolution, ok := c.resolver.ResolvePublicKey(ctx, recipientAddress)
	if !ok {
		c.logger.Info("no recipient key resolvable, sending unencrypted", "address", recipientAddress)
		return c.plaintextEnvelope(plaintext, senderPublicKey, ReasonNoPublicKey)
	}

	ciphertext, nonce, encryptedKey, err := seal(plaintext, resolution.PublicKey)
	if err != nil {
		c.logger.Warn("envelope encryption failed, sending unencrypted", "address", recipientAddress, "reason", err.Error())
		return c.plaintextEnvelope(plaintext, senderPublicKey, ReasonEncryptionFailed)
	}

	return models.Envelope{
		EncryptedMessage: ciphertext,
		EncryptedKey:     encryptedKey,
		IV:               nonce,
		Metadata: models.EnvelopeMetadata{
			Encrypted:       true,
			Algorithm:       Algorithm,
			SenderPublicKey: senderPublicKey,
			Timestamp:       c.now().UTC(),
		},
	}
}

// Open decrypts one envelope addressed to ownAddress. Plaintext envelopes
// pass through verbatim. Failures are typed: ErrFormat for malformed
// envelopes, ErrCrypto for wrap/decrypt failures, ErrNoPrivateKey when the
// local pair is missing. The sender's key is learned opportunistically on
// success when senderAddress is known.
func (c *Codec) Open(env models.Envelope, ownAddress, senderAddress string) ([]byte, error) {
	if !env.Metadata.Encrypted {
		c.learnSender(senderAddress, env.Metadata.SenderPublicKey)
		return env.EncryptedMessage, nil
	}

	ownPair, ok := c.keys.IdentityKeys(ownAddress)
	if !ok {
		return nil, ErrNoPrivateKey
	}
	plaintext, err := open(env.EncryptedMessage, env.IV, env.EncryptedKey, ownPair.PrivateKey)
	if err != nil {
		return nil, err
	}
	c.learnSender(senderAddress, env.Metadata.SenderPublicKey)
	return plaintext, nil
}

// DecryptOrPlaceholder collapses every Open failure to the well-known
// placeholder, logging only the failure class, never the payload.
func (c *Codec) DecryptOrPlaceholder(env models.Envelope, ownAddress, senderAddress string) []byte {
	plaintext, err := c.Open(env, ownAddress, senderAddress)
	if err == nil {
		return plaintext
	}
	c.logger.Warn("envelope decryption failed", "address", ownAddress, "failure_class", failureClass(err))
	return []byte(Placeholder)
}

func (c *Codec) plaintextEnvelope(plaintext, senderPublicKey []byte, reason string) models.Envelope {
	return models.Envelope{
		EncryptedMessage: plaintext,
		Metadata: models.EnvelopeMetadata{
			Encrypted:       false,
			Reason:          reason,
			SenderPublicKey: senderPublicKey,
			Timestamp:       c.now().UTC(),
		},
	}
}

func (c *Codec) learnSender(senderAddress string, senderPublicKey []byte) {
	if c.learner == nil || senderAddress == "" || len(senderPublicKey) == 0 {
		return
	}
	c.learner.LearnPublicKey(senderAddress, senderPublicKey)
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrNoPrivateKey):
		return "no_private_key"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	default:
		return "unknown"
	}
}
