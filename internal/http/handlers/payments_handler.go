package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
	"github.com/muratovtemurbek/healthhub-uz/internal/payments"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

type PaymentsHandler struct {
	svc payments.Service
	cfg config.StripeConfig
}

func NewPaymentsHandler(svc payments.Service, cfg config.StripeConfig) *PaymentsHandler {
	return &PaymentsHandler{svc: svc, cfg: cfg}
}

// Routes mixes the authenticated checkout with the unauthenticated
// provider callback, so the auth gate is applied per route.
func (h *PaymentsHandler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(requireAuth).Post("/checkout", h.checkout)
	r.Post("/webhook", h.webhook)
	return r
}

func (h *PaymentsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)

	var in struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.AppointmentID == uuid.Nil {
		response.BadRequest(w, "appointment_id is required")
		return
	}

	out, err := h.svc.CreateCheckout(r.Context(), u.ID, in.AppointmentID)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, out)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 65536))
	if err != nil {
		response.BadRequest(w, "cannot read body")
		return
	}

	providerTxID, ok := h.completedTxID(r, body)
	if !ok {
		// Unverifiable or irrelevant events are acknowledged so the
		// provider stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.svc.HandleCompleted(r.Context(), providerTxID); err != nil {
		logger.ErrorContext(r.Context(), "payment webhook failed", "provider_tx_id", providerTxID, "error", err)
		response.InternalError(w, "webhook processing failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// completedTxID extracts the payment intent ID from a verified
// payment_intent.succeeded event. Without a webhook secret the body is
// trusted as a bare dev payload.
func (h *PaymentsHandler) completedTxID(r *http.Request, body []byte) (string, bool) {
	if h.cfg.WebhookSecret == "" {
		var in struct {
			ProviderTxID string `json:"provider_tx_id"`
		}
		if err := json.Unmarshal(body, &in); err != nil || in.ProviderTxID == "" {
			return "", false
		}
		return in.ProviderTxID, true
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.cfg.WebhookSecret)
	if err != nil {
		logger.WarnContext(r.Context(), "stripe signature verification failed", "error", err)
		return "", false
	}
	if string(event.Type) != "payment_intent.succeeded" {
		return "", false
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		logger.WarnContext(r.Context(), "malformed payment intent payload", "error", err)
		return "", false
	}
	return pi.ID, true
}
