// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// Handler holds all HTTP handlers for the admission API.
type Handler struct {
	catalog       *service.EventCatalog
	registrations *service.RegistrationService
	lifecycle     *service.EventLifecycle
	settlement    *service.Settlement
}

// New constructs a Handler.
func New(
	catalog *service.EventCatalog,
	registrations *service.RegistrationService,
	lifecycle *service.EventLifecycle,
	settlement *service.Settlement,
) *Handler {
	return &Handler{
		catalog:       catalog,
		registrations: registrations,
		lifecycle:     lifecycle,
		settlement:    settlement,
	}
}

// Routes mounts the API on r. Every API route requires an identity.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.SubmitEvent)
			r.Get("/", h.ListEvents)
			r.Get("/{id}", h.GetEvent)
			r.Post("/{id}/decision", h.DecideEvent)
			r.Post("/{id}/cancel", h.CancelEvent)
			r.Get("/{id}/registrations", h.ListRegistrations)
			r.Post("/{id}/registrations", h.CreateRegistration)
			r.Get("/{id}/notifications", h.ListNotifications)
		})
		r.Route("/registrations", func(r chi.Router) {
			r.Post("/{id}/cancel", h.CancelRegistration)
			r.Post("/{id}/payment", h.SubmitPayment)
			r.Get("/{id}/payment", h.GetPayment)
		})
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrMissingFeedback):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrCapacityExceeded),
		errors.Is(err, model.ErrDuplicateRegistration),
		errors.Is(err, model.ErrInvalidStateTransition),
		errors.Is(err, model.ErrEventNotActive),
		errors.Is(err, model.ErrRegistrationWindowClosed):
		status = http.StatusConflict
	case errors.Is(err, model.ErrPaymentFailed):
		status = http.StatusPaymentRequired
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// ─── Events ───────────────────────────────────────────────────────────────────

// SubmitEvent handles POST /events
// Stores a new Pending event owned by the calling organizer.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.catalog.SubmitEvent(r.Context(), ActorFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns a JSON array of events, filtered by the optional status parameter.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	status := model.EventStatus(r.URL.Query().Get("status"))

	events, err := h.catalog.ListEvents(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

type eventDetail struct {
	*model.Event
	Kits         []model.Kit        `json:"kits"`
	Categories   []model.Category   `json:"categories"`
	Availability model.Availability `json:"availability"`
}

// GetEvent handles GET /events/{id}
// Returns the event with its kits, categories and current slot availability.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	kits, err := h.catalog.Kits(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	categories, err := h.catalog.Categories(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	avail, err := h.catalog.Availability(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if kits == nil {
		kits = []model.Kit{}
	}
	if categories == nil {
		categories = []model.Category{}
	}

	writeJSON(w, http.StatusOK, eventDetail{Event: event, Kits: kits, Categories: categories, Availability: avail})
}

// DecideEvent handles POST /events/{id}/decision
// Responds 202 with a description while confirmation is still required and
// 200 once the decision has been applied.
func (h *Handler) DecideEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.DecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.lifecycle.Decide(r.Context(), ActorFrom(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.ConfirmationRequired {
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cancelEventResponse struct {
	Event         *model.Event         `json:"event"`
	Registrations []model.Registration `json:"cancelled_registrations"`
}

// CancelEvent handles POST /events/{id}/cancel
// Cancels the event together with all its slot-holding registrations.
func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, cancelled, err := h.lifecycle.Cancel(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if cancelled == nil {
		cancelled = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, cancelEventResponse{Event: event, Registrations: cancelled})
}

// ListNotifications handles GET /events/{id}/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	notes, err := h.lifecycle.Notifications(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if notes == nil {
		notes = []model.Notification{}
	}

	writeJSON(w, http.StatusOK, notes)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// CreateRegistration handles POST /events/{id}/registrations
// Claims a slot for the calling participant.
func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := ActorFrom(r.Context())
	if actor.Role != model.RoleParticipant {
		writeError(w, http.StatusForbidden, "only participants can register")
		return
	}

	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.registrations.Create(r.Context(), id, actor.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for a given event.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	regs, err := h.catalog.ListRegistrations(r.Context(), ActorFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// CancelRegistration handles POST /registrations/{id}/cancel
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reg, err := h.registrations.Cancel(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ─── Payments ─────────────────────────────────────────────────────────────────

// SubmitPayment handles POST /registrations/{id}/payment
// Runs one settlement attempt; a declined attempt answers 402.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.PaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out, err := h.settlement.Submit(r.Context(), ActorFrom(r.Context()), id, req.Method)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// GetPayment handles GET /registrations/{id}/payment
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.settlement.Payment(r.Context(), ActorFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
