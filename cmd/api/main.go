package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"coachbook/internal/api"
	"coachbook/internal/cache"
	"coachbook/internal/config"
	"coachbook/internal/database"
	"coachbook/internal/external"
	"coachbook/internal/handlers"
	"coachbook/internal/logger"
	"coachbook/internal/messaging"
	"coachbook/internal/repository"
	"coachbook/internal/search"
	"coachbook/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Get().Debug("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	repos := repository.NewRepositories(db)

	deps := service.Deps{
		Bookings: repos.Bookings,
		Coaches:  repos.Coaches,
		Idem:     repos.Idempotency,
		Ledger:   repos.Ledger,
		Audit:    repos.Audit,
		Provider: external.NewPaymentClient(cfg.Payment),
		Knobs: service.Knobs{
			ProvisionalLockTTL: cfg.ProvisionalLockTTL,
			PaymentWindow:      cfg.PaymentWindow,
			AutoResolveAfter:   cfg.AutoResolveAfter,
			CreateDedupWindow:  cfg.CreateDedupWindow,
			WebhookDedupWindow: cfg.WebhookDedupWindow,
		},
	}

	// The broker, cache and search index are conveniences, not requirements:
	// the API degrades to Postgres-only behavior when any of them is down.
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Warn("NATS unavailable, domain events will not be published", "error", err)
	} else {
		defer natsClient.Close()
		deps.Publisher = natsClient
	}

	if cfg.Valkey.Enabled {
		valkey, err := cache.NewValkeyClient(cfg.Valkey.Addr, cfg.Valkey.Password)
		if err != nil {
			log.Warn("Valkey unavailable, webhook dedup falls back to database", "error", err)
		} else {
			defer valkey.Close()
			deps.Deliveries = valkey
		}
	}

	var searchIdx *search.AuditIndexClient
	if cfg.Elasticsearch.Enabled {
		searchIdx, err = search.NewAuditIndexClient(search.AuditIndexConfig{
			URL:        cfg.Elasticsearch.URL,
			Username:   cfg.Elasticsearch.Username,
			Password:   cfg.Elasticsearch.Password,
			Index:      cfg.Elasticsearch.Index,
			MaxRetries: cfg.Elasticsearch.MaxRetries,
		})
		if err != nil {
			log.Warn("Elasticsearch unavailable, audit search index disabled", "error", err)
			searchIdx = nil
		} else {
			deps.Indexer = searchIdx
		}
	}

	svc := service.NewBookingService(deps)
	router := api.NewRouter(handlers.NewHandler(svc, searchIdx), db, searchIdx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go func() {
		log.Info("Starting booking API", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", "error", err)
	}
	log.Info("Server stopped")
}
