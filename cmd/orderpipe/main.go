package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/orderpipe/internal/alert"
	"github.com/shohag/orderpipe/internal/api"
	"github.com/shohag/orderpipe/internal/config"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/notify"
	"github.com/shohag/orderpipe/internal/pipeline"
	"github.com/shohag/orderpipe/internal/queue"
	"github.com/shohag/orderpipe/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "orderpipe",
		Short: "OrderPipe — Order processing and notification delivery service",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(seedCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the OrderPipe server and worker pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			couponPolicy, err := pipeline.ParseCouponPolicy(cfg.Pipeline.CouponFailurePolicy)
			if err != nil {
				return err
			}

			alerts := alert.NewWebhook(cfg.Alerting, log)
			estimator := pipeline.NewEstimator(cfg.Shipping)
			gateway := pipeline.NewHTTPGateway(cfg.Payment)
			pipe := pipeline.New(store, estimator, gateway, couponPolicy, alerts, log)

			dispatcher := notify.NewDispatcher(store, notify.NewDirectory(store),
				notify.NewEmailSender(cfg.Senders.Email, cfg.Senders.Timeout),
				notify.NewSMSSender(cfg.Senders.SMS, cfg.Senders.Timeout),
				notify.NewPushSender(cfg.Senders.Push, cfg.Senders.Timeout),
				log)

			orderWorker := queue.NewWorker(store, pipe, retryPolicy(cfg.Queue.Orders, queue.DefaultOrderPolicy), alerts, log)
			ntfWorker := queue.NewWorker(store, dispatcher, retryPolicy(cfg.Queue.Notifications, queue.DefaultNotificationPolicy), alerts, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			orderPool := queue.NewPool(models.QueueOrders, cfg.Queue.Orders.Workers, cfg.Queue.PollInterval, store, orderWorker, log)
			ntfPool := queue.NewPool(models.QueueNotifications, cfg.Queue.Notifications.Workers, cfg.Queue.PollInterval, store, ntfWorker, log)
			orderPool.Start(ctx)
			ntfPool.Start(ctx)

			server := api.NewServer(cfg.Server, store, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("order_workers", cfg.Queue.Orders.Workers).
				Int("notification_workers", cfg.Queue.Notifications.Workers).
				Str("storage", cfg.Storage.Driver).
				Msg("OrderPipe is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			orderPool.Stop()
			ntfPool.Stop()

			log.Info().Msg("OrderPipe stopped")
			return nil
		},
	}
}

func retryPolicy(cfg config.QueueWorkerConfig, fallback queue.RetryPolicy) queue.RetryPolicy {
	policy := queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetrySchedule,
		ReuseLast:   true,
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = fallback.MaxAttempts
	}
	if len(policy.Backoff) == 0 {
		policy.Backoff = fallback.Backoff
	}
	return policy
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Println("migrations completed successfully")
			return nil
		},
	}
}

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo catalog data for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			now := time.Now().UTC()

			products := []*models.Product{
				{ID: models.NewID("prd"), Name: "Caneca Esmaltada", SKU: "CAN-001", PriceCents: 4500, Stock: 120, TrackStock: true, WeightGrams: 350, CreatedAt: now, UpdatedAt: now},
				{ID: models.NewID("prd"), Name: "Camiseta Algodão", SKU: "CAM-010", PriceCents: 7500, Stock: 80, TrackStock: true, WeightGrams: 200, CreatedAt: now, UpdatedAt: now},
				{ID: models.NewID("prd"), Name: "Cartão Presente", SKU: "GFT-001", PriceCents: 5000, Stock: 0, TrackStock: false, WeightGrams: 0, CreatedAt: now, UpdatedAt: now},
			}
			for _, p := range products {
				if err := store.CreateProduct(ctx, p); err != nil {
					return fmt.Errorf("failed to seed product %s: %w", p.Name, err)
				}
			}

			coupons := []*models.Coupon{
				{ID: models.NewID("cpn"), Code: "BEMVINDO10", Type: models.CouponPercentage, Value: 10, MinSubtotalCents: 10000, Active: true, CreatedAt: now},
				{ID: models.NewID("cpn"), Code: "FRETEGRATIS", Type: models.CouponFreeShipping, MinSubtotalCents: 20000, Active: true, CreatedAt: now},
			}
			for _, c := range coupons {
				if err := store.CreateCoupon(ctx, c); err != nil {
					return fmt.Errorf("failed to seed coupon %s: %w", c.Code, err)
				}
			}

			customer := &models.Customer{ID: models.NewID("cus"), Name: "Maria Silva", Email: "maria@example.com", Phone: "+5511999990000", CreatedAt: now}
			if err := store.CreateCustomer(ctx, customer); err != nil {
				return fmt.Errorf("failed to seed customer: %w", err)
			}

			admin := &models.Admin{ID: models.NewID("adm"), Name: "Operações", Email: "ops@example.com"}
			if err := store.CreateAdmin(ctx, admin); err != nil {
				return fmt.Errorf("failed to seed admin: %w", err)
			}

			fmt.Printf("seeded %d products, %d coupons, 1 customer, 1 admin\n", len(products), len(coupons))
			return nil
		},
	}
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show order and notification stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("OrderPipe v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
