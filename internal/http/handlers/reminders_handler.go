package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	mw "github.com/muratovtemurbek/healthhub-uz/internal/http/middleware"
	"github.com/muratovtemurbek/healthhub-uz/internal/http/response"
	"github.com/muratovtemurbek/healthhub-uz/internal/repository"
)

type RemindersHandler struct {
	reminders repository.MedicineReminderRepository
}

func NewRemindersHandler(reminders repository.MedicineReminderRepository) *RemindersHandler {
	return &RemindersHandler{reminders: reminders}
}

func (h *RemindersHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/{id}", h.getByID)
	r.Post("/{id}/pause", h.setStatus(domain.MedicinePaused))
	r.Post("/{id}/resume", h.setStatus(domain.MedicineActive))
	r.Post("/{id}/complete", h.setStatus(domain.MedicineCompleted))
	return r
}

type createReminderReq struct {
	DrugName   string   `json:"drug_name"`
	Dose       string   `json:"dose"`
	Times      []string `json:"times"`
	StartDate  string   `json:"start_date"`
	EndDate    *string  `json:"end_date"`
	WithFood   bool     `json:"with_food"`
	BeforeFood bool     `json:"before_food"`
}

func (h *RemindersHandler) create(w http.ResponseWriter, r *http.Request) {
	u := mw.CurrentUser(r)

	var in createReminderReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.DrugName == "" || len(in.Times) == 0 {
		response.BadRequest(w, "drug_name and times are required")
		return
	}

	raw, err := json.Marshal(in.Times)
	if err != nil {
		response.BadRequest(w, "invalid times")
		return
	}
	if _, err := domain.ParseMedicineTimes(raw); err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	startDate, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		response.BadRequest(w, "start_date must be YYYY-MM-DD")
		return
	}
	var endDate *time.Time
	if in.EndDate != nil {
		d, err := time.Parse(dateLayout, *in.EndDate)
		if err != nil {
			response.BadRequest(w, "end_date must be YYYY-MM-DD")
			return
		}
		if d.Before(startDate) {
			response.BadRequest(w, "end_date is before start_date")
			return
		}
		endDate = &d
	}

	m, err := h.reminders.Create(r.Context(), &domain.MedicineReminder{
		UserID:     u.ID,
		DrugName:   in.DrugName,
		Dose:       in.Dose,
		TimesRaw:   raw,
		StartDate:  startDate,
		EndDate:    endDate,
		WithFood:   in.WithFood,
		BeforeFood: in.BeforeFood,
	})
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, viewReminder(m))
}

func (h *RemindersHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	u := mw.CurrentUser(r)
	m, err := h.reminders.GetByID(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, r, err)
		return
	}
	if m == nil || m.UserID != u.ID {
		response.NotFound(w, "reminder not found")
		return
	}

	response.WriteJSON(w, http.StatusOK, viewReminder(m))
}

func (h *RemindersHandler) setStatus(status domain.MedicineReminderStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.BadRequest(w, "invalid id")
			return
		}

		u := mw.CurrentUser(r)
		if err := h.reminders.SetStatus(r.Context(), id, u.ID, status); err != nil {
			response.WriteDomainError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
