package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
directory:
  baseUrl: "https://directory.example"
  timeout: 2s
cache:
  ttl: 90s
storage:
  dataDir: "/var/lib/crosstalk"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg := LoadFromPath(path)
	if cfg.Directory.BaseURL != "https://directory.example" {
		t.Fatalf("baseUrl = %q", cfg.Directory.BaseURL)
	}
	if cfg.Directory.Timeout != 2*time.Second {
		t.Fatalf("timeout = %v", cfg.Directory.Timeout)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("ttl = %v", cfg.Cache.TTL)
	}
	// Untouched fields keep defaults.
	if cfg.Directory.RequestsPerSecond != 10 {
		t.Fatalf("rps = %v", cfg.Directory.RequestsPerSecond)
	}
	if cfg.KeystorePath() != filepath.Join("/var/lib/crosstalk", "keystore.enc") {
		t.Fatalf("keystore path = %q", cfg.KeystorePath())
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("CT_DIRECTORY_URL", "https://env.example")
	t.Setenv("CT_CACHE_TTL", "30s")

	cfg := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Directory.BaseURL != "https://env.example" {
		t.Fatalf("baseUrl = %q", cfg.Directory.BaseURL)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("ttl = %v", cfg.Cache.TTL)
	}
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	cfg := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("ttl = %v", cfg.Cache.TTL)
	}
	if cfg.KeystorePath() != "" {
		t.Fatal("no data dir means no keystore path")
	}
}

func TestInvalidEnvDurationIgnored(t *testing.T) {
	t.Setenv("CT_CACHE_TTL", "not-a-duration")
	cfg := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("invalid env value must be ignored, ttl = %v", cfg.Cache.TTL)
	}
}
