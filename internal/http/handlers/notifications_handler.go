package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
)

type NotificationsHandler struct {
	notifications repository.NotificationRepository
}

func NewNotificationsHandler(notifications repository.NotificationRepository) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

func (h *NotificationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/{id}/read", h.markRead)
	return r
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.notifications.List(r.Context(), u.ID, limit, offset)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, viewNotifications(list))
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	u := mw.CurrentUser(r)
	if err := h.notifications.MarkRead(r.Context(), id, u.ID); err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
