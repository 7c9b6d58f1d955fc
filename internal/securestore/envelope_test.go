package securestore

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	plain, err := Decrypt("pass", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestDecryptTamperedFailsDeterministically(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if len(data) < 10 {
		t.Fatalf("unexpected encrypted payload size: %d", len(data))
	}
	data[len(data)-2] ^= 0xFF
	_, err = Decrypt("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptRejectsKDFDowngrade(t *testing.T) {
	env, err := EncryptEnvelope("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	downgraded := *env
	downgraded.KDFMemoryKB = 8 * 1024
	if _, err := DecryptEnvelope("pass", &downgraded); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for downgraded kdf policy, got %v", err)
	}
}

func TestDecryptRejectsMalformedHeader(t *testing.T) {
	env, err := EncryptEnvelope("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	shortNonce := *env
	shortNonce.Nonce = env.Nonce[:4]
	if _, err := DecryptEnvelope("pass", &shortNonce); !errors.Is(err, ErrInvalid) {
		t.Fatalf("malformed nonce must fail closed, got %v", err)
	}

	zeroThreads := *env
	zeroThreads.KDFThreads = 0
	if _, err := DecryptEnvelope("pass", &zeroThreads); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero kdf threads must fail closed, got %v", err)
	}

	hugeMemory := *env
	hugeMemory.KDFMemoryKB = 16 * 1024 * 1024
	if _, err := DecryptEnvelope("pass", &hugeMemory); !errors.Is(err, ErrInvalid) {
		t.Fatalf("oversized kdf memory must fail closed, got %v", err)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	data, err := Encrypt("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestReadWriteEncryptedJSON(t *testing.T) {
	path := t.TempDir() + "/state.enc"
	type snapshot struct {
		Version int    `json:"version"`
		Name    string `json:"name"`
	}
	if err := WriteEncryptedJSON(path, "secret", snapshot{Version: 1, Name: "alice"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var out snapshot
	found, err := ReadDecryptedJSON(path, "secret", &out)
	if err != nil || !found {
		t.Fatalf("read failed: found=%v err=%v", found, err)
	}
	if out.Version != 1 || out.Name != "alice" {
		t.Fatalf("unexpected snapshot: %+v", out)
	}

	found, err = ReadDecryptedJSON(t.TempDir()+"/missing.enc", "secret", &out)
	if err != nil || found {
		t.Fatalf("missing file should report found=false, got found=%v err=%v", found, err)
	}
}
