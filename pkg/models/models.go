package models

import "time"

// IdentityKeyPair is the X25519 key pair protecting message confidentiality.
// The private half never leaves the device except inside a password-encrypted
// backup blob.
type IdentityKeyPair struct {
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

// SigningKeyPair is the Ed25519 key pair authenticating outgoing content.
// It is independent from IdentityKeyPair and never used for confidentiality.
type SigningKeyPair struct {
	SigningPublicKey  []byte `json:"signing_public_key"`
	SigningPrivateKey []byte `json:"signing_private_key"`
}

// DirectoryEntry is the remote directory's view of one identity's public
// material. Immutable once fetched; superseded only by rotation.
type DirectoryEntry struct {
	Address          string `json:"address"`
	PublicKey        []byte `json:"public_key"`
	SigningPublicKey []byte `json:"signing_public_key,omitempty"`
	Verified         bool   `json:"verified"`
}

// EnvelopeMetadata describes how (and whether) an envelope was encrypted.
// Encrypted is the single source of truth for whether confidentiality was
// achieved; Reason is set on the plaintext fallback paths.
type EnvelopeMetadata struct {
	Encrypted       bool      `json:"encrypted"`
	Algorithm       string    `json:"algorithm,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	SenderPublicKey []byte    `json:"sender_public_key,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Envelope is the unit exchanged over the transport. When
// Metadata.Encrypted is false, EncryptedMessage holds the plaintext verbatim
// and EncryptedKey/IV are absent.
type Envelope struct {
	EncryptedMessage []byte           `json:"encrypted_message"`
	EncryptedKey     []byte           `json:"encrypted_key,omitempty"`
	IV               []byte           `json:"iv,omitempty"`
	Metadata         EnvelopeMetadata `json:"metadata"`
}

// BackupBlob is a portable, password-protected serialization of an
// identity's private key material. The salt is generated per backup.
type BackupBlob struct {
	Version     uint32    `json:"version"`
	Identity    string    `json:"identity"`
	KDF         string    `json:"kdf"`
	KDFTime     uint32    `json:"kdf_time"`
	KDFMemoryKB uint32    `json:"kdf_memory_kb"`
	KDFThreads  uint8     `json:"kdf_threads"`
	Salt        []byte    `json:"salt"`
	Nonce       []byte    `json:"nonce"`
	Ciphertext  []byte    `json:"ciphertext"`
	CreatedAt   time.Time `json:"created_at"`
}
