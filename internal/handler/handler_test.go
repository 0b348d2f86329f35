package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/ledger"
	"github.com/Shivanand-hulikatti/event-admission/internal/lock"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/payment"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t         *testing.T
	srv       *httptest.Server
	lifecycle *service.EventLifecycle

	mu   sync.Mutex
	draw float64
}

func (a *api) setDraw(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.draw = v
}

func (a *api) nextDraw() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draw
}

func newAPI(t *testing.T) *api {
	t.Helper()
	a := &api{t: t}

	store := repository.NewMemoryStore()
	now := func() time.Time { return time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC) }
	l := ledger.New(store)
	locks := lock.NewLocal()
	proc := payment.NewSimulated(config.Settlement{SuccessRate: 0.5},
		payment.WithDraw(a.nextDraw),
	)

	regs := service.NewRegistrationService(store, store, l, locks, now)
	a.lifecycle = service.NewEventLifecycle(store, regs, locks, notify.Log{}, time.Second, now)
	h := New(
		service.NewEventCatalog(store, store, l, now),
		regs,
		a.lifecycle,
		service.NewSettlement(store, store, regs, proc, locks, time.Second, now),
	)

	r := chi.NewRouter()
	r.Use(CORS)
	r.Get("/health", HealthCheck)
	h.Routes(r)
	a.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		a.srv.Close()
		a.lifecycle.Wait()
	})
	return a
}

func (a *api) do(method, path string, actor model.Actor, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if !actor.IsZero() {
		req.Header.Set(HeaderActorID, actor.ID)
		req.Header.Set(HeaderActorRole, string(actor.Role))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

var (
	admin     = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
	organizer = model.Actor{ID: "org-1", Role: model.RoleOrganizer}
	runner    = model.Actor{ID: "p-1", Role: model.RoleParticipant}
)

func (a *api) activeEvent(capacity int) model.Event {
	a.t.Helper()
	var ev model.Event
	status := a.do(http.MethodPost, "/events", organizer, model.CreateEventRequest{
		Name:              "Harbour swim",
		RegistrationStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		RegistrationEnd:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Capacity:          capacity,
		BasePrice:         decimal.NewFromInt(40),
	}, &ev)
	require.Equal(a.t, http.StatusCreated, status)

	status = a.do(http.MethodPost, "/events/"+ev.ID+"/decision", admin,
		model.DecisionRequest{Decision: model.DecisionApprove, Confirmed: true}, nil)
	require.Equal(a.t, http.StatusOK, status)
	return ev
}

func TestHealthCheck(t *testing.T) {
	a := newAPI(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", model.Actor{}, nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	a := newAPI(t)
	var e model.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/events", model.Actor{}, nil, &e))
	assert.NotEmpty(t, e.Error)

	status := a.do(http.MethodGet, "/events", model.Actor{ID: "x", Role: "root"}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDecisionRequiresConfirmation(t *testing.T) {
	a := newAPI(t)
	var ev model.Event
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/events", organizer, model.CreateEventRequest{
		Name:              "Night ride",
		RegistrationStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		RegistrationEnd:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Capacity:          10,
	}, &ev))

	path := "/events/" + ev.ID + "/decision"
	assert.Equal(t, http.StatusUnprocessableEntity,
		a.do(http.MethodPost, path, admin, model.DecisionRequest{Decision: model.DecisionDeny}, nil))

	var res model.DecisionResult
	assert.Equal(t, http.StatusAccepted,
		a.do(http.MethodPost, path, admin, model.DecisionRequest{Decision: model.DecisionDeny, Feedback: "no permit"}, &res))
	assert.True(t, res.ConfirmationRequired)

	assert.Equal(t, http.StatusForbidden,
		a.do(http.MethodPost, path, organizer, model.DecisionRequest{Decision: model.DecisionApprove, Confirmed: true}, nil))

	assert.Equal(t, http.StatusOK,
		a.do(http.MethodPost, path, admin, model.DecisionRequest{Decision: model.DecisionDeny, Feedback: "no permit", Confirmed: true}, &res))
	require.NotNil(t, res.Event)
	assert.Equal(t, model.EventDenied, res.Event.Status)

	a.lifecycle.Wait()
	var notes []model.Notification
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID+"/notifications", admin, nil, &notes))
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Dispatched)
}

func TestRegistrationAndPaymentFlow(t *testing.T) {
	a := newAPI(t)
	ev := a.activeEvent(1)

	var reg model.Registration
	require.Equal(t, http.StatusCreated,
		a.do(http.MethodPost, "/events/"+ev.ID+"/registrations", runner, model.RegisterRequest{}, &reg))
	assert.Equal(t, model.RegistrationPending, reg.Status)

	other := model.Actor{ID: "p-2", Role: model.RoleParticipant}
	assert.Equal(t, http.StatusConflict,
		a.do(http.MethodPost, "/events/"+ev.ID+"/registrations", other, model.RegisterRequest{}, nil))
	assert.Equal(t, http.StatusForbidden,
		a.do(http.MethodPost, "/events/"+ev.ID+"/registrations", organizer, model.RegisterRequest{}, nil))

	payPath := "/registrations/" + reg.ID + "/payment"
	a.setDraw(0.9)
	assert.Equal(t, http.StatusPaymentRequired,
		a.do(http.MethodPost, payPath, runner, model.PaymentRequest{Method: model.MethodInstantTransfer}, nil))

	a.setDraw(0.1)
	var out model.PaymentOutcome
	require.Equal(t, http.StatusOK,
		a.do(http.MethodPost, payPath, runner, model.PaymentRequest{Method: model.MethodInstantTransfer}, &out))
	assert.Equal(t, model.PaymentPaid, out.Payment.Status)
	assert.Equal(t, model.RegistrationConfirmed, out.Registration.Status)
	assert.Equal(t, 2, out.Payment.Attempts)

	var p model.Payment
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, payPath, runner, nil, &p))
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, payPath, other, nil, nil))

	var detail struct {
		model.Event
		Availability model.Availability `json:"availability"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID, runner, nil, &detail))
	assert.Equal(t, 0, detail.Availability.Available)
}

func TestCancelEventReturnsCancelledRegistrations(t *testing.T) {
	a := newAPI(t)
	ev := a.activeEvent(3)

	require.Equal(t, http.StatusCreated,
		a.do(http.MethodPost, "/events/"+ev.ID+"/registrations", runner, model.RegisterRequest{}, nil))

	var regs []model.Registration
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/events/"+ev.ID+"/registrations", runner, nil, nil))
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID+"/registrations", organizer, nil, &regs))
	assert.Len(t, regs, 1)

	var res struct {
		Event         model.Event          `json:"event"`
		Registrations []model.Registration `json:"cancelled_registrations"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/events/"+ev.ID+"/cancel", organizer, nil, &res))
	assert.Equal(t, model.EventCancelled, res.Event.Status)
	require.Len(t, res.Registrations, 1)
	assert.Equal(t, model.RegistrationCancelled, res.Registrations[0].Status)

	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, "/events/"+ev.ID+"/cancel", organizer, nil, nil))
}

func TestCancelRegistration(t *testing.T) {
	a := newAPI(t)
	ev := a.activeEvent(2)

	var reg model.Registration
	require.Equal(t, http.StatusCreated,
		a.do(http.MethodPost, "/events/"+ev.ID+"/registrations", runner, model.RegisterRequest{}, &reg))

	path := "/registrations/" + reg.ID + "/cancel"
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, path, organizer, nil, nil))
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path, runner, nil, &reg))
	assert.Equal(t, model.RegistrationCancelled, reg.Status)
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, path, runner, nil, nil))
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/events/missing", runner, nil, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodGet, "/events?status=Unknown", runner, nil, nil))
	assert.Equal(t, http.StatusUnprocessableEntity,
		a.do(http.MethodPost, "/events", organizer, model.CreateEventRequest{Name: "x"}, nil))
	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPost, "/events", organizer, map[string]any{"unknown": 1}, nil))

	var events []model.Event
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events", runner, nil, &events))
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestEventDetailListsCategories(t *testing.T) {
	a := newAPI(t)
	other := a.activeEvent(2)

	var ev model.Event
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/events", organizer, model.CreateEventRequest{
		Name:              "Hill climb",
		RegistrationStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		RegistrationEnd:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Capacity:          5,
		Categories:        []string{"under 18", "open"},
	}, &ev))
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/events/"+ev.ID+"/decision", admin,
		model.DecisionRequest{Decision: model.DecisionApprove, Confirmed: true}, nil))

	var detail struct {
		Categories []model.Category `json:"categories"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+ev.ID, runner, nil, &detail))
	require.Len(t, detail.Categories, 2)
	assert.Equal(t, "open", detail.Categories[0].Name)

	var none struct {
		Categories []model.Category `json:"categories"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/events/"+other.ID, runner, nil, &none))
	assert.NotNil(t, none.Categories)
	assert.Empty(t, none.Categories)

	path := "/events/" + other.ID + "/registrations"
	assert.Equal(t, http.StatusUnprocessableEntity,
		a.do(http.MethodPost, path, runner, model.RegisterRequest{CategoryID: detail.Categories[0].ID}, nil))
	assert.Equal(t, http.StatusNotFound,
		a.do(http.MethodPost, path, runner, model.RegisterRequest{CategoryID: "missing"}, nil))

	var reg model.Registration
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/events/"+ev.ID+"/registrations", runner,
		model.RegisterRequest{CategoryID: detail.Categories[0].ID}, &reg))
	assert.Equal(t, detail.Categories[0].ID, reg.CategoryID)
}
