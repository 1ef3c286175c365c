package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/patchwatch/patchwatch/internal/alerting"
	"github.com/patchwatch/patchwatch/internal/api"
	"github.com/patchwatch/patchwatch/internal/cleanup"
	"github.com/patchwatch/patchwatch/internal/metrics"
	"github.com/patchwatch/patchwatch/internal/notifier"
	"github.com/patchwatch/patchwatch/internal/settings"
	"github.com/patchwatch/patchwatch/internal/storage"
	"github.com/patchwatch/patchwatch/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "patchwatch-server",
	Short: "PatchWatch Server - Fleet alerting and notification pipeline",
	Long: `PatchWatch Server ingests patch and host events from monitored fleets,
manages alert lifecycles, and delivers notifications to configured channels.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("patchwatch-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	jwtSecret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	log.Printf("database initialized at %s", cfg.Database.Path)

	// Delivery history goes to ClickHouse when configured
	history := store.NotificationHistory()
	if cfg.Database.HistoryBackend == "clickhouse" {
		ch := storage.NewClickHouseHistory(&storage.ClickHouseConfig{
			Addresses:     cfg.Database.ClickHouse.Addresses,
			Database:      cfg.Database.ClickHouse.Database,
			Username:      cfg.Database.ClickHouse.Username,
			Password:      cfg.Database.ClickHouse.Password,
			Compression:   cfg.Database.ClickHouse.Compression,
			RetentionDays: cfg.Database.ClickHouse.RetentionDays,
		})
		if err := ch.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer ch.Close()
		if err := ch.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		history = ch
		log.Printf("delivery history backend: clickhouse")
	}

	// Pipeline components
	gate := settings.NewStore(*cfg.Alerting.Enabled)
	registry := alerting.NewRegistry(store.AlertConfigs())
	manager := alerting.NewManager(store.Alerts(), store.AlertHistory(), registry, gate)
	matcher := notifier.NewMatcher(store.Rules(), store.Channels(), registry, gate)
	dispatcher := notifier.NewDispatcher(history, nil, notifier.DispatcherConfig{
		SendTimeout:   cfg.Alerting.DispatchTimeout,
		MaxAttempts:   cfg.Alerting.RetryAttempts,
		RatePerMinute: cfg.Alerting.RatePerMinute,
	})
	historyDays := cfg.Cleanup.HistoryRetentionDays
	if cfg.Database.HistoryBackend == "clickhouse" {
		// The ClickHouse table carries its own TTL
		historyDays = 0
	}
	scheduler := cleanup.NewScheduler(store.Alerts(), history, registry, cfg.Cleanup.Interval, historyDays)

	// Hot-reload the global alerting switch on config file changes
	if configFile != "" {
		watcher, err := settings.NewWatcher(gate, configFile)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	apiServer, err := api.New(&api.Config{
		Address:   cfg.Server.Address,
		JWTSecret: []byte(jwtSecret),
		Verbose:   cfg.Verbose,
	}, api.Deps{
		Storage:    store,
		Manager:    manager,
		Registry:   registry,
		Matcher:    matcher,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.Metrics.Address)
	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	scheduler.Start()
	defer scheduler.Stop()

	log.Printf("starting %s", config.VersionString())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Run(gctx)
	})
	g.Go(func() error {
		return metricsServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}
