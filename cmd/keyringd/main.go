package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crosstalk/go-backend/internal/backup"
	"crosstalk/go-backend/internal/config"
	"crosstalk/go-backend/internal/directory"
	"crosstalk/go-backend/internal/envelope"
	"crosstalk/go-backend/internal/keycache"
	"crosstalk/go-backend/internal/keystore"
	"crosstalk/go-backend/internal/platform/privacylog"
	"crosstalk/go-backend/internal/rotation"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for encrypted local state (optional)")
	directoryURL := flag.String("directory-url", "", "Directory service base URL override")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address override")
	flag.Parse()
	if *showVersion {
		fmt.Printf("keyringd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *dataDir != "" {
		_ = os.Setenv("CT_DATA_DIR", *dataDir)
	}
	if *directoryURL != "" {
		_ = os.Setenv("CT_DIRECTORY_URL", *directoryURL)
	}
	if *metricsAddr != "" {
		_ = os.Setenv("CT_METRICS_ADDR", *metricsAddr)
	}

	slog.SetDefault(slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, nil))))

	cfg := config.LoadFromPath(*configPath)
	svc, err := buildService(cfg)
	if err != nil {
		log.Fatalf("keyringd failed to initialize: %v", err)
	}

	log.Println("keyringd starting")
	if err := svc.run(ctx, cfg); err != nil {
		log.Fatalf("keyringd failed: %v", err)
	}
	log.Println("keyringd stopped")
}

type service struct {
	keys     *keystore.Store
	dir      *directory.Client
	codec    *envelope.Codec
	rotation *rotation.Controller
	backup   *backup.Controller
	cache    *keycache.Cache
}

func buildService(cfg config.Config) (*service, error) {
	keys, err := keystore.NewStore(keystore.NewStateStore(cfg.KeystorePath(), cfg.Storage.Secret), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}

	var remote directory.Remote
	if cfg.Directory.BaseURL != "" {
		remote, err = directory.NewHTTPRemote(cfg.Directory.BaseURL, directory.HTTPRemoteOptions{
			Timeout:           cfg.Directory.Timeout,
			RequestsPerSecond: cfg.Directory.RequestsPerSecond,
			Burst:             cfg.Directory.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("directory remote: %w", err)
		}
	} else {
		slog.Warn("no directory URL configured; resolution limited to cache and fallback registry")
	}

	fallback, err := directory.NewFallbackRegistry(cfg.FallbackPath(), cfg.Storage.Secret)
	if err != nil {
		return nil, fmt.Errorf("fallback registry: %w", err)
	}

	cache := keycache.New(cfg.Cache.TTL)
	dir := directory.NewClient(keys, cache, remote, fallback, slog.Default())
	keys.SetRegistrar(dir)
	keys.SetInvalidator(dir)

	return &service{
		keys:     keys,
		dir:      dir,
		codec:    envelope.NewCodec(dir, keys, dir, slog.Default()),
		rotation: rotation.NewController(keys, dir, slog.Default()),
		backup:   backup.NewController(keys),
		cache:    cache,
	}, nil
}

func (s *service) run(ctx context.Context, cfg config.Config) error {
	server := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: newAPIHandler(s, promhttp.Handler()),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	purge := time.NewTicker(time.Minute)
	defer purge.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("api server: %w", err)
		case <-purge.C:
			s.cache.PurgeExpired()
		}
	}
}
