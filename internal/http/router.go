package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/muratovtemurbek/healthhub-uz/internal/auth"
	"github.com/muratovtemurbek/healthhub-uz/internal/booking"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/handlers"
	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/notify"
	"github.com/muratovtemurbek/healthhub-uz/internal/payments"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/internal/telegram"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	pkgmw "github.com/muratovtemurbek/healthhub-uz/pkg/middleware"
)

// Deps carries everything the API surface needs.
type Deps struct {
	Auth          auth.Service
	Booking       booking.Service
	Payments      payments.Service
	Telegram      telegram.Service
	TelegramBot   *telegram.Router
	Transport     notify.Transport
	Doctors       repository.DoctorRepository
	Notifications repository.NotificationRepository
	Reminders     repository.MedicineReminderRepository
	Cfg           *config.Config
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(pkgmw.RequestID)
	r.Use(pkgmw.ServiceName("api"))
	r.Use(pkgmw.Logging)
	r.Use(pkgmw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(pkgmw.Health)

	authHandler := handlers.NewAuthHandler(d.Auth)
	appointmentsHandler := handlers.NewAppointmentsHandler(d.Booking)
	doctorsHandler := handlers.NewDoctorsHandler(d.Booking, d.Doctors)
	notificationsHandler := handlers.NewNotificationsHandler(d.Notifications)
	remindersHandler := handlers.NewRemindersHandler(d.Reminders)
	telegramHandler := handlers.NewTelegramHandler(d.Telegram, d.TelegramBot, d.Transport, d.Cfg.Telegram)
	paymentsHandler := handlers.NewPaymentsHandler(d.Payments, d.Cfg.Stripe)

	requireAuth := mw.RequireAuth(d.Auth)

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/telegram", telegramHandler.Routes(requireAuth))
		r.Mount("/payments", paymentsHandler.Routes(requireAuth))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Mount("/appointments", appointmentsHandler.Routes())
			r.Mount("/doctors", doctorsHandler.Routes())
			r.Mount("/notifications", notificationsHandler.Routes())
			r.Mount("/reminders", remindersHandler.Routes())
		})
	})

	return r
}
