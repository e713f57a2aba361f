package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
	"github.com/muratovtemurbek/healthhub-uz/internal/notify"
	"github.com/muratovtemurbek/healthhub-uz/internal/telegram"
	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

type TelegramHandler struct {
	svc       telegram.Service
	router    *telegram.Router
	transport notify.Transport
	cfg       config.TelegramConfig
}

func NewTelegramHandler(svc telegram.Service, router *telegram.Router, transport notify.Transport, cfg config.TelegramConfig) *TelegramHandler {
	return &TelegramHandler{svc: svc, router: router, transport: transport, cfg: cfg}
}

// Routes mixes the authenticated account side (requesting a code) with the
// bot webhook. The webhook carries the bot token in the path as a shared
// secret, the way Telegram recommends, instead of user auth.
func (h *TelegramHandler) Routes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(requireAuth).Post("/code", h.issueCode)
	r.Post("/webhook/{token}", h.webhook)
	return r
}

func (h *TelegramHandler) issueCode(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)

	issued, err := h.svc.IssueCode(r.Context(), u.ID)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"code":              issued.Code,
		"expires_at":        issued.ExpiresAt,
		"remaining_seconds": issued.RemainingSeconds,
		"bot_name":          h.cfg.BotName,
	})
}

// update mirrors the subset of the Bot API update payload the router needs.
type update struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"chat"`
		From struct {
			FirstName string `json:"first_name"`
		} `json:"from"`
	} `json:"message"`
}

func (h *TelegramHandler) webhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.BotToken == "" || chi.URLParam(r, "token") != h.cfg.BotToken {
		response.Unauthorized(w, "unknown webhook token")
		return
	}

	var in update
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.Message.Chat.ID == 0 {
		// Not a message update; acknowledge and move on.
		w.WriteHeader(http.StatusOK)
		return
	}

	reply := h.router.HandleInboundMessage(r.Context(),
		in.Message.Chat.ID, in.Message.Chat.Username, in.Message.From.FirstName, in.Message.Text)

	if reply != "" && h.transport != nil {
		if err := h.transport.SendMessage(r.Context(), in.Message.Chat.ID, reply); err != nil {
			logger.WarnContext(r.Context(), "telegram reply failed", "chat_id", in.Message.Chat.ID, "error", err)
		}
	}

	// Always 200 so Telegram does not retry the update.
	w.WriteHeader(http.StatusOK)
}
