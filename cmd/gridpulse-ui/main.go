package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gridpulse/gridpulse-ui/internal/alerts"
	"github.com/gridpulse/gridpulse-ui/internal/cache"
	"github.com/gridpulse/gridpulse-ui/internal/config"
	"github.com/gridpulse/gridpulse-ui/internal/feed"
	"github.com/gridpulse/gridpulse-ui/internal/grid"
	"github.com/gridpulse/gridpulse-ui/internal/logging"
	"github.com/gridpulse/gridpulse-ui/internal/prefs"
	"github.com/gridpulse/gridpulse-ui/internal/reconcile"
	"github.com/gridpulse/gridpulse-ui/internal/server"
	"github.com/gridpulse/gridpulse-ui/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger for pre-config errors (text, stderr).
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		bootLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Create configured logger after successful config load.
	logger := logging.NewLogger(cfg.Log)

	logger.Info("starting gridpulse-ui",
		"listen", cfg.Server.Listen,
		"feed", cfg.Feed.URL,
		"push_enabled", cfg.Push.Enabled,
	)

	store := grid.NewStore(cfg.Grid.MaxAge, logger)

	manager := alerts.NewManager(func() (grid.LimitConfig, bool) {
		if store.Generation() == 0 {
			return grid.LimitConfig{}, false
		}
		return store.Snapshot().Limits, true
	}, logger)
	store.SetListener(manager)

	rec := reconcile.New(store, manager, logger)
	if cfg.Grid.Limits != nil {
		logger.Info("voltage limits overridden from configuration",
			"nominal", cfg.Grid.Limits.Nominal,
			"lower", cfg.Grid.Limits.LowerLimit,
			"upper", cfg.Grid.Limits.UpperLimit,
		)
		rec.SetLimitOverride(cfg.Grid.Limits)
	}

	feedClient := feed.NewClient(feed.Config{
		URL:      cfg.Feed.URL,
		Username: cfg.Feed.Username,
		Password: cfg.Feed.Password,
		Timeout:  cfg.Feed.Timeout,
	})

	// Startup reachability check. Unreachable is not fatal: the supervisor
	// keeps polling and the dashboard serves last-known-good state.
	if feedClient.Ping(context.Background()) {
		logger.Info("data service reachable", "url", cfg.Feed.URL)
	} else {
		logger.Warn("data service unreachable at startup, relying on poll retries",
			"url", cfg.Feed.URL)
	}

	prefStore, closePrefs, err := newPrefStore(cfg)
	if err != nil {
		logger.Error("failed to create preference store", "error", err)
		os.Exit(1)
	}
	defer closePrefs()
	prefService := prefs.NewService(prefStore, logger)

	var dial supervisor.DialFunc
	if cfg.Push.Enabled {
		pushURL := cfg.Push.URL
		if pushURL == "" {
			pushURL = cfg.Feed.URL + "/api/events"
		}
		pushCfg := feed.PushConfig{
			URL:      pushURL,
			Username: cfg.Feed.Username,
			Password: cfg.Feed.Password,
		}
		dial = func(ctx context.Context) (supervisor.PushReader, error) {
			return feed.DialPush(ctx, pushCfg)
		}
	}

	sup := supervisor.New(feedClient, dial, rec, manager, store, supervisor.Options{
		PollInterval:   cfg.Poll.Interval,
		FetchTimeout:   cfg.Poll.FetchTimeout,
		BackoffMin:     cfg.Push.BackoffMin,
		BackoffMax:     cfg.Push.BackoffMax,
		AlertSyncLimit: cfg.Poll.AlertSyncLimit,
	}, logger)

	srv := server.New(cfg, logger, store, manager, rec, prefService,
		cache.New(cfg.Cache.TTL), feedClient, sup.Live)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	err = srv.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// newPrefStore builds the configured preference backend. The returned close
// function is a no-op for the file store.
func newPrefStore(cfg *config.Config) (prefs.Store, func(), error) {
	switch cfg.Prefs.Store {
	case "redis":
		rs := prefs.NewRedisStore(cfg.Prefs.Redis.Addr, cfg.Prefs.Redis.Password, cfg.Prefs.Redis.DB)
		return rs, func() { _ = rs.Close() }, nil
	case "file", "":
		return prefs.NewFileStore(cfg.Prefs.File.Path), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown prefs store %q", cfg.Prefs.Store)
	}
}
