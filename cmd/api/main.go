package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/muratovtemurbek/healthhub-uz/internal/auth"
	"github.com/muratovtemurbek/healthhub-uz/internal/booking"
	httpapi "github.com/muratovtemurbek/healthhub-uz/internal/http"
	"github.com/muratovtemurbek/healthhub-uz/internal/notify"
	"github.com/muratovtemurbek/healthhub-uz/internal/payments"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/internal/scheduler"
	"github.com/muratovtemurbek/healthhub-uz/internal/telegram"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/database"
	"github.com/muratovtemurbek/healthhub-uz/pkg/events"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
	"github.com/muratovtemurbek/healthhub-uz/pkg/redislock"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Error("Failed to migrate schema", "error", err)
		os.Exit(1)
	}

	redisClient, err := redislock.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	clk := clock.New()

	// Repositories
	userRepo := repository.NewUserRepository(pool)
	doctorRepo := repository.NewDoctorRepository(pool)
	appointmentRepo := repository.NewAppointmentRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	reminderRepo := repository.NewMedicineReminderRepository(pool)
	verificationRepo := repository.NewVerificationRepository(pool)

	// Outbound channels
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

	// Reminder planning happens through the shared Postgres queue; the
	// worker binary drains it.
	jobs := queue.NewPgQueue(pool)
	planner := scheduler.New(jobs, reminderRepo, clk, cfg.Scheduler)

	locker := redislock.New(redisClient, cfg.Booking.SlotLockTTL)

	// Services
	authService := auth.NewService(userRepo, clk, cfg.Auth)
	bookingService := booking.NewService(appointmentRepo, doctorRepo, userRepo,
		locker, planner, bus, eventBus, clk, cfg.Booking)
	telegramService := telegram.NewService(verificationRepo, userRepo, eventBus, clk, cfg.Telegram)
	telegramRouter := telegram.NewRouter(telegramService, userRepo)
	paymentService := payments.NewService(paymentRepo, bookingService, eventBus, clk, cfg.Stripe)

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:          authService,
		Booking:       bookingService,
		Payments:      paymentService,
		Telegram:      telegramService,
		TelegramBot:   telegramRouter,
		Transport:     transport,
		Doctors:       doctorRepo,
		Notifications: notificationRepo,
		Reminders:     reminderRepo,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	}()

	logger.Info("API server starting", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
