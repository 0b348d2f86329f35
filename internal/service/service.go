// Package service implements admission control and lifecycle coordination:
// registration creation and cancellation against the capacity ledger, event
// approval and cancellation, and idempotent payment settlement.
//
// Every mutation of an event's status or of its registrations runs while
// holding the event's lock (eventKey), so a registration that races an event
// cancellation either completes before the cascade or observes the cancelled
// event.
package service

import (
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

func eventKey(eventID string) string {
	return "event:" + eventID
}

func settlementKey(registrationID string) string {
	return "settlement:" + registrationID
}

func requireActor(actor model.Actor) error {
	if actor.IsZero() {
		return model.ErrUnauthenticated
	}
	return nil
}

// outcome names an error for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, model.ErrRegistrationWindowClosed):
		return "window_closed"
	case errors.Is(err, model.ErrEventNotActive):
		return "event_not_active"
	case errors.Is(err, model.ErrDuplicateRegistration):
		return "duplicate"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrPermissionDenied), errors.Is(err, model.ErrUnauthenticated):
		return "denied"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
