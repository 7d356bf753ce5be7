package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/aquacache/internal/cache"
	"github.com/l0p7/aquacache/internal/client"
	"github.com/l0p7/aquacache/internal/config"
	"github.com/l0p7/aquacache/internal/logging"
	"github.com/l0p7/aquacache/internal/metrics"
	"github.com/l0p7/aquacache/internal/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "AQUACACHE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	store := buildStore(logger.With(slog.String("component", "store_factory")), cfg.Server.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	engine := cache.NewEngine(store, logger, recorder)
	resolver := cache.NewResolver(cfg.CachePolicies(), cache.DefaultPolicy())
	invalidator := cache.NewInvalidator(store, cfg.InvalidationPatterns(), logger, recorder)

	apiClient := client.New(client.Config{
		Store:       store,
		Engine:      engine,
		Resolver:    resolver,
		Invalidator: invalidator,
		Logger:      logger,
		Retry: client.RetryConfig{
			MaxAttempts:     cfg.Server.Retry.MaxAttempts,
			InitialInterval: time.Duration(cfg.Server.Retry.InitialIntervalMs) * time.Millisecond,
		},
	})

	upstream, err := client.NewUpstream(cfg.Server.Upstream.BaseURL, time.Duration(cfg.Server.Upstream.TimeoutSeconds)*time.Second)
	if err != nil {
		logger.Error("unable to configure upstream", slog.Any("error", err))
		os.Exit(1)
	}

	var policyWatcher *config.PolicyWatcher
	if path := strings.TrimSpace(cfg.Server.Cache.PoliciesFile); path != "" {
		watcher, err := config.WatchPolicies(ctx, path, func(policies []config.PolicyConfig) {
			apiClient.ReplacePolicies(ctx, config.PoliciesFromConfig(policies))
		}, func(err error) {
			if err != nil {
				logger.Error("policy watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("policy watcher setup failed", slog.Any("error", err))
		} else {
			policyWatcher = watcher
			defer policyWatcher.Stop()
		}
	}

	views := server.BuildViews(cfg.Views)
	handler := server.NewRouter(apiClient, upstream, views, logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/", handler)

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildStore picks the configured store backend, falling back to memory
// when valkey is unreachable so the daemon still starts degraded.
func buildStore(logger *slog.Logger, cfg config.CacheConfig) cache.Store {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory cache store",
			slog.Int("capacity", cfg.Capacity), slog.Int("stale_factor", cfg.StaleFactor))
		return cache.NewMemory(cfg.Capacity, cfg.StaleFactor)
	case "valkey":
		store, err := cache.NewValkey(cache.ValkeyConfig{
			Address:     cfg.Valkey.Address,
			Username:    cfg.Valkey.Username,
			Password:    cfg.Valkey.Password,
			DB:          cfg.Valkey.DB,
			StaleFactor: cfg.StaleFactor,
			TLS: cache.ValkeyTLSConfig{
				Enabled: cfg.Valkey.TLS.Enabled,
				CAFile:  cfg.Valkey.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("valkey store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache store")
			return cache.NewMemory(cfg.Capacity, cfg.StaleFactor)
		}
		logger.Info("using valkey cache store", slog.String("address", cfg.Valkey.Address))
		return store
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory(cfg.Capacity, cfg.StaleFactor)
	}
}
