package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/muratovtemurbek/healthhub-uz/internal/notify"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/internal/scheduler"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/database"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

// The worker binary runs the reminder planner and the delivery pool. It
// shares the Postgres queue with the API, so several workers can run side
// by side; leasing keeps them from double-delivering.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(rootCtx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(rootCtx, pool); err != nil {
		logger.Error("Failed to migrate schema", "error", err)
		os.Exit(1)
	}

	clk := clock.New()

	userRepo := repository.NewUserRepository(pool)
	appointmentRepo := repository.NewAppointmentRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	reminderRepo := repository.NewMedicineReminderRepository(pool)
	verificationRepo := repository.NewVerificationRepository(pool)

	var transport notify.Transport
	if cfg.Telegram.BotToken != "" {
		transport = notify.NewBotClient(cfg.Telegram)
	} else {
		transport = notify.DevTransport{}
	}
	var mailer notify.Mailer
	if cfg.Email.DevMode {
		mailer = notify.DevMailer{}
	} else {
		mailer = notify.NewMailerSend(cfg.Email)
	}
	bus := notify.NewBus(notificationRepo, userRepo, verificationRepo, transport, mailer)

	jobs := queue.NewPgQueue(pool)
	plan := scheduler.New(jobs, reminderRepo, clk, cfg.Scheduler)

	worker := queue.NewWorker(jobs, clk, queue.WorkerOptions{
		Workers:        cfg.Scheduler.WorkerCount,
		HandlerTimeout: cfg.Scheduler.HandlerTimeout,
		RetryBase:      cfg.Scheduler.RetryBase,
	})
	scheduler.NewDelivery(appointmentRepo, reminderRepo, bus).Register(worker)

	logger.Info("Worker starting",
		"workers", cfg.Scheduler.WorkerCount,
		"medicine_tick", cfg.Scheduler.MedicineTick)

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return plan.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
