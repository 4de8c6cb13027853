package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/01moynul/medbooks-golang/internal/auth"
	"github.com/01moynul/medbooks-golang/internal/config"
	"github.com/01moynul/medbooks-golang/internal/database"
	"github.com/01moynul/medbooks-golang/internal/events"
	"github.com/01moynul/medbooks-golang/internal/handlers"
	"github.com/01moynul/medbooks-golang/internal/listings"
	"github.com/01moynul/medbooks-golang/internal/logger"
	"github.com/01moynul/medbooks-golang/internal/orders"
	"github.com/01moynul/medbooks-golang/internal/review"
	"github.com/01moynul/medbooks-golang/internal/routes"
	"github.com/01moynul/medbooks-golang/internal/settlement"
	"github.com/01moynul/medbooks-golang/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 0. --- Load Configuration (.env, config.yaml, environment) ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.App.Env)
	defer logger.Log.Sync()
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. --- Database Connection ---
	db, err := database.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("failed to migrate database", zap.Error(err))
	}

	// 2. --- Event Publisher ---
	pub, closer := newPublisher(cfg)
	defer closer.Close()

	// 3. --- Services ---
	feePercent, _ := cfg.FeePercent() // checked by Validate
	wallets := wallet.NewManager(db, pub, cfg.Wallet.DefaultCurrency)
	coordinator := settlement.NewCoordinator(db, wallets, pub)

	app := &handlers.Handlers{
		DB:         db,
		Auth:       auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL),
		Wallets:    wallets,
		Reviewer:   review.NewReviewer(wallets),
		Settlement: coordinator,
		Orders:     orders.NewService(db, feePercent),
		Listings:   listings.NewService(db, cfg.Wallet.DefaultCurrency),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. --- Background Worker ---
	// Fails payments left PENDING longer than the configured TTL and releases their stock.
	if cfg.Settlement.SweepInterval > 0 {
		go sweepStalePayments(ctx, coordinator, cfg.Settlement.SweepInterval, cfg.Settlement.PaymentTTL)
	} else {
		logger.Log.Info("payment sweeper disabled")
	}

	// --- Router Setup ---
	router := routes.SetupRouter(app, cfg.Origins())

	// --- Start Server ---
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log.Info("starting MedBooks API server", zap.Int("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func sweepStalePayments(ctx context.Context, c *settlement.Coordinator, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Log.Info("payment sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("ttl", ttl))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.ExpireStale(ctx, ttl)
			if err != nil {
				logger.Log.Error("payment sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("expired stale payments", zap.Int("count", n))
			}
		}
	}
}

func newPublisher(cfg *config.Config) (events.Publisher, io.Closer) {
	switch cfg.Events.Driver {
	case "redis":
		p := events.NewRedisPublisher(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		}), cfg.Redis.Channel)
		return p, p
	case "kafka":
		p := events.NewKafkaPublisher(cfg.KafkaBrokers(), cfg.Kafka.Topic)
		return p, p
	default:
		return events.Nop{}, io.NopCloser(nil)
	}
}
