package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Directory DirectoryConfig `yaml:"directory"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type DirectoryConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
	Secret  string `yaml:"secret"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		Directory: DirectoryConfig{
			Timeout:           5 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Cache:   CacheConfig{TTL: 5 * time.Minute},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
	}
}

// LoadFromPath reads configuration from configPath, falling back to the
// default candidate locations, then applies environment overrides. A missing
// or unreadable file leaves the defaults in place.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"go-backend/configs/config.yaml",
			"configs/config.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src Config) {
	if src.Directory.BaseURL != "" {
		dst.Directory.BaseURL = src.Directory.BaseURL
	}
	if src.Directory.Timeout > 0 {
		dst.Directory.Timeout = src.Directory.Timeout
	}
	if src.Directory.RequestsPerSecond > 0 {
		dst.Directory.RequestsPerSecond = src.Directory.RequestsPerSecond
	}
	if src.Directory.Burst > 0 {
		dst.Directory.Burst = src.Directory.Burst
	}
	if src.Cache.TTL > 0 {
		dst.Cache.TTL = src.Cache.TTL
	}
	if src.Storage.DataDir != "" {
		dst.Storage.DataDir = src.Storage.DataDir
	}
	if src.Storage.Secret != "" {
		dst.Storage.Secret = src.Storage.Secret
	}
	if src.Metrics.Addr != "" {
		dst.Metrics.Addr = src.Metrics.Addr
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CT_DIRECTORY_URL")); v != "" {
		cfg.Directory.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CT_DIRECTORY_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Directory.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CT_DIRECTORY_RPS")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Directory.RequestsPerSecond = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("CT_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Cache.TTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CT_DATA_DIR")); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CT_STORE_SECRET")); v != "" {
		cfg.Storage.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("CT_METRICS_ADDR")); v != "" {
		cfg.Metrics.Addr = v
	}
}

// KeystorePath and FallbackPath name the encrypted state files inside the
// data dir; empty when persistence is not configured.
func (c Config) KeystorePath() string {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return ""
	}
	return filepath.Join(c.Storage.DataDir, "keystore.enc")
}

func (c Config) FallbackPath() string {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return ""
	}
	return filepath.Join(c.Storage.DataDir, "fallback_registry.enc")
}
