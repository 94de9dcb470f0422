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

	"github.com/quiet-harbor/guardrail/internal/alerting"
	"github.com/quiet-harbor/guardrail/internal/api"
	"github.com/quiet-harbor/guardrail/internal/api/auth"
	"github.com/quiet-harbor/guardrail/internal/api/health"
	"github.com/quiet-harbor/guardrail/internal/metrics"
	"github.com/quiet-harbor/guardrail/internal/notifier"
	"github.com/quiet-harbor/guardrail/internal/storage"
	"github.com/quiet-harbor/guardrail/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "guardrail-server",
	Short: "Guardrail - alert rule matching and notification delivery",
	Long: `Guardrail Server evaluates compliance test results against alert rules,
manages the alert workflow, and delivers notifications across channels.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("guardrail-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [actor]",
	Short: "Mint a service token for an actor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("GUARDRAIL_JWT_SECRET")
		if secret == "" {
			return fmt.Errorf("GUARDRAIL_JWT_SECRET environment variable is required")
		}

		svc := auth.NewJWTService([]byte(secret), tokenTTL)
		token, err := svc.GenerateToken(args[0])
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token time to live")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

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

	// Optional evaluation archive
	var archive alerting.Archiver
	var chArchive *storage.ClickHouseArchive
	if cfg.ClickHouse.Enabled {
		chArchive = storage.NewClickHouseArchive(&storage.ClickHouseConfig{
			Addresses:     cfg.ClickHouse.Addresses,
			Database:      cfg.ClickHouse.Database,
			Username:      cfg.ClickHouse.Username,
			Password:      os.Getenv("GUARDRAIL_CLICKHOUSE_PASSWORD"),
			Compression:   cfg.ClickHouse.Compression,
			RetentionDays: cfg.ClickHouse.RetentionDays,
		})
		if err := chArchive.Open(); err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chArchive.Close()
		if err := chArchive.Migrate(); err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		archive = chArchive
		log.Printf("evaluation archive enabled at %v", cfg.ClickHouse.Addresses)
	}

	// Delivery dispatcher and channel notifiers
	dispatcher := notifier.NewDispatcher(store, notifier.Options{
		MaxConcurrent: int64(cfg.Delivery.MaxConcurrent),
		SendTimeout:   time.Duration(cfg.Delivery.SendTimeoutSeconds) * time.Second,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		RateBurst:     cfg.Delivery.RateBurst,
	})
	dispatcher.Register(notifier.NewSlackNotifier(nil))
	dispatcher.Register(notifier.NewWebhookNotifier(nil))
	dispatcher.Register(notifier.NewInAppNotifier(store))
	if cfg.SMTP.Host != "" {
		email, err := notifier.NewEmailNotifier(notifier.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: os.Getenv("GUARDRAIL_SMTP_PASSWORD"),
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return fmt.Errorf("configure email notifier: %w", err)
		}
		dispatcher.Register(email)
	} else {
		log.Printf("smtp not configured, email channel disabled")
	}

	// Matching engine and lifecycle
	tracker := alerting.NewTracker()
	engine := alerting.NewEngine(store, store, dispatcher, tracker, archive)
	lifecycle := alerting.NewLifecycle(store)

	// API server
	apiCfg := &api.Config{
		Address:        cfg.Server.HTTPAddress,
		JWTSecret:      []byte(os.Getenv("GUARDRAIL_JWT_SECRET")),
		RateLimitPerIP: cfg.Server.RateLimitPerIP,
		Verbose:        cfg.Verbose,
	}
	srv, err := api.New(apiCfg, store, engine, lifecycle, dispatcher)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	if chArchive != nil {
		// Archive outages degrade readiness, they do not fail it.
		srv.RegisterOptionalHealthChecker(health.NewClickHouseChecker(chArchive))
	}

	// Metrics server on its own port
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddress)
	go func() {
		if err := metricsSrv.Start(); err != nil {
			log.Printf("warning: %v", err)
		}
	}()

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

	// Suppression sweep: reopen suppressed alerts whose window lapsed.
	go runSuppressionSweep(ctx, lifecycle,
		time.Duration(cfg.Delivery.SweepIntervalSeconds)*time.Second)

	log.Printf("starting guardrail-server %s", config.Version)

	runErr := srv.Run(ctx)

	// Let in-flight deliveries finish before exiting.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: dispatcher shutdown: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: metrics server shutdown: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("run server: %w", runErr)
	}

	log.Printf("server stopped")
	return nil
}

func runSuppressionSweep(ctx context.Context, lifecycle *alerting.Lifecycle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reopened, err := lifecycle.SweepSuppressed(ctx, now)
			if err != nil {
				log.Printf("warning: suppression sweep: %v", err)
				continue
			}
			if reopened > 0 {
				log.Printf("suppression sweep reopened %d alerts", reopened)
			}
		}
	}
}
