package model

import "errors"

// Validation errors. Returned before any state is touched.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a request fails basic field validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRegistrationWindowClosed is returned when today falls outside the
	// event's registration window, regardless of remaining capacity.
	ErrRegistrationWindowClosed = errors.New("registration window is closed")

	// ErrMissingFeedback is returned when an event is denied without feedback.
	ErrMissingFeedback = errors.New("denial requires feedback")
)

// Competitive and lifecycle errors.
var (
	// ErrCapacityExceeded is returned when an event has no remaining slots.
	ErrCapacityExceeded = errors.New("event capacity exceeded")

	// ErrEventNotActive is returned when an event does not accept registrations.
	ErrEventNotActive = errors.New("event is not active")

	// ErrInvalidStateTransition is returned for any transition missing from a
	// lifecycle's transition table, and for writes that bypass the owning component.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrDuplicateRegistration is returned when the participant already holds a
	// non-cancelled registration for the event.
	ErrDuplicateRegistration = errors.New("participant already registered for this event")

	// ErrPermissionDenied is returned when the actor may not perform the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnauthenticated is returned when no caller identity is present.
	ErrUnauthenticated = errors.New("caller identity required")

	// ErrPaymentFailed is returned when settlement did not succeed. The caller may retry.
	ErrPaymentFailed = errors.New("payment failed")
)
