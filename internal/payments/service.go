package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"github.com/muratovtemurbek/healthhub-uz/internal/booking"
	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/events"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

// Checkout is the client-facing payment intent handle.
type Checkout struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	Amount       int64     `json:"amount"`
	ClientSecret string    `json:"client_secret,omitempty"`
}

type Service interface {
	CreateCheckout(ctx context.Context, userID, appointmentID uuid.UUID) (*Checkout, error)
	HandleCompleted(ctx context.Context, providerTxID string) error
}

type service struct {
	payments repository.PaymentRepository
	booking  booking.Service
	eventBus events.Publisher
	clk      clock.Clock
	cfg      config.StripeConfig
}

func NewService(
	payments repository.PaymentRepository,
	bookingSvc booking.Service,
	eventBus events.Publisher,
	clk clock.Clock,
	cfg config.StripeConfig,
) Service {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &service{
		payments: payments,
		booking:  bookingSvc,
		eventBus: eventBus,
		clk:      clk,
		cfg:      cfg,
	}
}

// CreateCheckout opens a payment intent for a live, unpaid appointment.
// Without a configured Stripe key the intent is simulated, which keeps
// local flows working end to end.
func (s *service) CreateCheckout(ctx context.Context, userID, appointmentID uuid.UUID) (*Checkout, error) {
	a, err := s.booking.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !a.Status.Live() {
		return nil, domain.ErrStateConflict
	}
	if a.Paid {
		return nil, domain.ErrAlreadyPaid
	}

	providerTxID := "dev_" + uuid.NewString()
	clientSecret := ""

	if s.cfg.SecretKey != "" {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(a.Amount),
			Currency: stripe.String(s.cfg.Currency),
		}
		params.AddMetadata("appointment_id", appointmentID.String())

		pi, err := paymentintent.New(params)
		if err != nil {
			return nil, fmt.Errorf("create payment intent: %w", err)
		}
		providerTxID = pi.ID
		clientSecret = pi.ClientSecret
	}

	p, err := s.payments.Create(ctx, &domain.Payment{
		UserID:        userID,
		AppointmentID: &appointmentID,
		Amount:        a.Amount,
		Provider:      "stripe",
		ProviderTxID:  providerTxID,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	return &Checkout{
		PaymentID:    p.ID,
		Amount:       p.Amount,
		ClientSecret: clientSecret,
	}, nil
}

// HandleCompleted records the terminal state and binds the payment to its
// appointment. Replayed provider callbacks are no-ops.
func (s *service) HandleCompleted(ctx context.Context, providerTxID string) error {
	p, err := s.payments.GetByProviderTx(ctx, providerTxID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if p == nil {
		return domain.ErrNotFound
	}

	updated, err := s.payments.SetStatus(ctx, p.ID, domain.PaymentPending, domain.PaymentStatusDone, providerTxID)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if updated == nil {
		if p.Status == domain.PaymentStatusDone {
			return nil
		}
		return domain.ErrStateConflict
	}

	if updated.AppointmentID != nil {
		if err := s.booking.MarkPaid(ctx, *updated.AppointmentID, updated.ID); err != nil {
			// The payment row is the source of truth; a cancelled
			// appointment surfaces through the orphaned-payment event.
			logger.WarnContext(ctx, "payment completed but appointment not marked paid",
				"payment_id", updated.ID, "appointment_id", updated.AppointmentID, "error", err)
		}

		if s.eventBus != nil {
			event := events.PaymentCompletedEvent{
				PaymentID:     updated.ID,
				AppointmentID: *updated.AppointmentID,
				Amount:        updated.Amount,
				ProviderTxID:  providerTxID,
				CompletedAt:   s.clk.Now(),
			}
			if pubErr := s.eventBus.Publish(ctx, events.PaymentCompleted, event); pubErr != nil {
				logger.ErrorContext(ctx, "failed to publish payment completed event", "payment_id", updated.ID, "error", pubErr)
			}
		}
	}

	return nil
}
