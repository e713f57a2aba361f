package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/booking"
	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
)

type DoctorsHandler struct {
	booking booking.Service
	doctors repository.DoctorRepository
}

func NewDoctorsHandler(bookingSvc booking.Service, doctors repository.DoctorRepository) *DoctorsHandler {
	return &DoctorsHandler{booking: bookingSvc, doctors: doctors}
}

func (h *DoctorsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}/slots", h.slots)
	r.Get("/{id}/profile", h.profile)
	r.With(mw.RequireRole(domain.RoleDoctor, domain.RoleAdmin)).Put("/me/profile", h.upsertProfile)
	r.With(mw.RequireRole(domain.RoleDoctor, domain.RoleAdmin)).Patch("/me/availability", h.setAvailability)
	return r
}

// slots returns the free grid for one calendar day; held slots are already
// subtracted.
func (h *DoctorsHandler) slots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		response.BadRequest(w, "date query param must be YYYY-MM-DD")
		return
	}

	slots, err := h.booking.ListDoctorSlots(r.Context(), doctorID, date)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format(dateLayout),
		"slots": out,
	})
}

func (h *DoctorsHandler) profile(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	p, err := h.doctors.GetProfile(r.Context(), doctorID)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}
	if p == nil {
		response.NotFound(w, "doctor profile not found")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id":        p.UserID,
		"specialization": p.Specialization,
		"price":          p.Price,
		"available":      p.Available,
		"timezone":       p.Timezone,
		"schedule":       p.Schedule,
	})
}

type upsertProfileReq struct {
	Specialization string              `json:"specialization"`
	FacilityID     uuid.UUID           `json:"facility_id"`
	Price          int64               `json:"price"`
	Available      bool                `json:"available"`
	Timezone       string              `json:"timezone"`
	Schedule       map[string][]string `json:"schedule"`
}

func (h *DoctorsHandler) upsertProfile(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)

	var in upsertProfileReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			response.BadRequest(w, "unknown timezone")
			return
		}
	}

	raw, err := json.Marshal(in.Schedule)
	if err != nil {
		response.BadRequest(w, "invalid schedule")
		return
	}
	// Reject malformed grids at the boundary instead of at booking time.
	if _, err := domain.ParseWeeklySchedule(raw); err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	p := &domain.DoctorProfile{
		UserID:         u.ID,
		Specialization: in.Specialization,
		FacilityID:     in.FacilityID,
		Price:          in.Price,
		Available:      in.Available,
		Timezone:       in.Timezone,
		ScheduleRaw:    raw,
	}
	if err := h.doctors.UpsertProfile(r.Context(), p); err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DoctorsHandler) setAvailability(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)

	var in struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	if err := h.doctors.SetAvailability(r.Context(), u.ID, in.Available); err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
