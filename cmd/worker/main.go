package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coachbook/internal/config"
	"coachbook/internal/consumers"
	"coachbook/internal/database"
	"coachbook/internal/external"
	"coachbook/internal/jobs"
	"coachbook/internal/logger"
	"coachbook/internal/messaging"
	"coachbook/internal/repository"
	"coachbook/internal/service"
)

// The worker owns everything that runs without a request: the daily
// auto-resolution sweep and the notification consumers.
func main() {
	once := flag.Bool("once", false, "run a single sweep pass and exit (for cron)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logger.Get().Debug("No .env file found, using environment variables")
	}

	cfg := config.Load()
	cfg.NATS.ClientID = cfg.NATS.ClientID + "-worker"
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

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

	// Cron mode: one sweep pass against the database, no broker needed.
	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		report, err := service.NewBookingService(deps).Sweep(ctx)
		if err != nil {
			logger.Fatal("Sweep pass failed", "error", err)
		}
		log.Info("Sweep pass finished",
			"expired_unpaid", report.ExpiredUnpaid,
			"force_confirmed", report.ForceConfirmed,
			"group_settled", report.GroupSettled,
			"failures", report.Failures)
		return
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}
	defer natsClient.Close()
	deps.Publisher = natsClient

	svc := service.NewBookingService(deps)

	mailer := external.NewNotifyClient(cfg.Notifications)
	consumer := consumers.NewNotificationConsumer(mailer, repos.Coaches, cfg.OperatorEmail)
	if err := consumer.Start(natsClient); err != nil {
		logger.Fatal("Failed to start notification consumer", "error", err)
	}
	defer consumer.Stop()

	sweep := jobs.NewSweepJob(svc, cfg.SweepInterval)
	sweep.Start()
	defer sweep.Stop()

	log.Info("Worker started", "sweep_interval", cfg.SweepInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Worker shutting down...")
}
