package securestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IsConfigured reports whether encrypted persistence is configured.
func IsConfigured(path, secret string) bool {
	return strings.TrimSpace(path) != "" && strings.TrimSpace(secret) != ""
}

// ReadDecryptedJSON reads, decrypts and unmarshals a state snapshot into v.
// A missing file reports found=false without error.
func ReadDecryptedJSON(path, secret string, v any) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	plaintext, err := Decrypt(secret, raw)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return false, err
	}
	return true, nil
}

// WriteEncryptedJSON marshals, encrypts and writes a JSON state snapshot.
func WriteEncryptedJSON(path, secret string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	encrypted, err := Encrypt(secret, payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, encrypted, 0o600)
}
