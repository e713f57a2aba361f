package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/booking"
	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
)

type AppointmentsHandler struct {
	svc booking.Service
}

func NewAppointmentsHandler(svc booking.Service) *AppointmentsHandler {
	return &AppointmentsHandler{svc: svc}
}

func (h *AppointmentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.listMine)
	r.Get("/{id}", h.getByID)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/no-show", h.noShow)
	r.Post("/{id}/reschedule", h.reschedule)
	return r
}

type createAppointmentReq struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
	Symptoms string    `json:"symptoms"`
}

func (h *AppointmentsHandler) create(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)

	var in createAppointmentReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.DoctorID == uuid.Nil {
		response.BadRequest(w, "doctor_id is required")
		return
	}
	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		response.BadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	visitTime, err := domain.ParseTimeOfDay(in.Time)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	a, err := h.svc.CreateAppointment(r.Context(), u.ID, in.DoctorID, date, visitTime, in.Symptoms)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, viewAppointment(a))
}

func (h *AppointmentsHandler) listMine(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.svc.ListByPatient(r.Context(), u.ID, limit, offset)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, viewAppointments(list))
}

func (h *AppointmentsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	u := mw.CurrentUser(r)
	a, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}
	if u.Role != domain.RoleAdmin && u.ID != a.PatientID && u.ID != a.DoctorID {
		response.WriteDomainError(w, r, domain.ErrNotAuthorized)
		return
	}

	response.WriteJSON(w, http.StatusOK, viewAppointment(a))
}

func (h *AppointmentsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.ConfirmAppointment)
}

func (h *AppointmentsHandler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CompleteAppointment)
}

func (h *AppointmentsHandler) noShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.NoShow)
}

func (h *AppointmentsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	u := mw.CurrentUser(r)
	a, err := h.svc.CancelAppointment(r.Context(), id, u.ID, in.Reason)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, viewAppointment(a))
}

func (h *AppointmentsHandler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		response.BadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	visitTime, err := domain.ParseTimeOfDay(in.Time)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	u := mw.CurrentUser(r)
	a, err := h.svc.Reschedule(r.Context(), id, u.ID, date, visitTime)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, viewAppointment(a))
}

type transitionFn func(ctx context.Context, id, actorID uuid.UUID) (*domain.Appointment, error)

func (h *AppointmentsHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFn) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	u := mw.CurrentUser(r)
	a, err := fn(r.Context(), id, u.ID)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, viewAppointment(a))
}
