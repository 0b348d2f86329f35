// Package model defines the core domain types for the event admission system.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the calendar day of t (in UTC) lies within the window.
func (w Window) Contains(t time.Time) bool {
	day := Day(t)
	return !day.Before(Day(w.Start)) && !day.After(Day(w.End))
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Event represents a capacity-bounded activity submitted by an organizer.
type Event struct {
	ID           string          `json:"id"`
	OrganizerID  string          `json:"organizer_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	StartsOn     time.Time       `json:"starts_on"`
	EndsOn       time.Time       `json:"ends_on"`
	Registration Window          `json:"registration_window"`
	Capacity     int             `json:"capacity"`
	Reserved     int             `json:"reserved"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Status       EventStatus     `json:"status"`
	Feedback     string          `json:"feedback,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Remaining returns the number of unreserved slots.
func (e *Event) Remaining() int {
	if e.Reserved >= e.Capacity {
		return 0
	}
	return e.Capacity - e.Reserved
}

// AcceptsRegistrations reports whether the event is Active and on is within
// its registration window.
func (e *Event) AcceptsRegistrations(on time.Time) error {
	if e.Status != EventActive {
		return ErrEventNotActive
	}
	if !e.Registration.Contains(on) {
		return ErrRegistrationWindowClosed
	}
	return nil
}

// Kit is an optional purchasable add-on priced on top of the event base price.
type Kit struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Name      string          `json:"name"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// Category is an optional participant grouping (age bracket, distance, ...).
type Category struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Name    string `json:"name"`
}

// Registration represents a participant's claim on one slot of an event.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	ParticipantID string             `json:"participant_id"`
	CategoryID    string             `json:"category_id,omitempty"`
	KitID         string             `json:"kit_id,omitempty"`
	Status        RegistrationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Payment is the single settlement record of a registration.
type Payment struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"method"`
	Status         PaymentStatus   `json:"status"`
	Attempts       int             `json:"attempts"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// NotificationKind identifies the organizer notification emitted on a decision.
type NotificationKind string

const (
	NotifyApproval NotificationKind = "approval"
	NotifyDenial   NotificationKind = "denial"
)

// Notification records the outcome of one best-effort dispatch.
type Notification struct {
	ID         string           `json:"id"`
	EventID    string           `json:"event_id"`
	Kind       NotificationKind `json:"kind"`
	Feedback   string           `json:"feedback,omitempty"`
	Dispatched bool             `json:"dispatched"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Role is the capacity in which a caller acts.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Actor is the resolved identity of a caller. It is always supplied
// explicitly; the zero Actor is never treated as a valid identity.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsZero reports whether no identity was resolved.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// CreateEventRequest is the payload for submitting a new event.
type CreateEventRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	StartsOn          time.Time       `json:"starts_on"`
	EndsOn            time.Time       `json:"ends_on"`
	RegistrationStart time.Time       `json:"registration_start"`
	RegistrationEnd   time.Time       `json:"registration_end"`
	Capacity          int             `json:"capacity"`
	BasePrice         decimal.Decimal `json:"base_price"`
	Kits              []KitRequest    `json:"kits"`
	Categories        []string        `json:"categories"`
}

// KitRequest describes a kit offered with a new event.
type KitRequest struct {
	Name      string          `json:"name"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	CategoryID string `json:"category_id"`
	KitID      string `json:"kit_id"`
}

// PaymentRequest is the payload for a settlement attempt.
type PaymentRequest struct {
	Method PaymentMethod `json:"method"`
}

// Decision is an administrative verdict on a pending event.
type Decision string

const (
	DecisionApprove Decision = "Approved"
	DecisionDeny    Decision = "Denied"
)

// DecisionRequest is the payload for an administrative decision.
type DecisionRequest struct {
	Decision  Decision `json:"decision"`
	Feedback  string   `json:"feedback"`
	Confirmed bool     `json:"confirmed"`
}

// DecisionResult describes either the pending change (when confirmation is
// still required) or the applied transition.
type DecisionResult struct {
	EventID              string      `json:"event_id"`
	From                 EventStatus `json:"from"`
	To                   EventStatus `json:"to"`
	ConfirmationRequired bool        `json:"confirmation_required"`
	Description          string      `json:"description"`
	Event                *Event      `json:"event,omitempty"`
}

// PaymentOutcome is the result of a settlement attempt.
type PaymentOutcome struct {
	Payment      *Payment      `json:"payment"`
	Registration *Registration `json:"registration"`
}

// Availability summarises the slot accounting of an event.
type Availability struct {
	EventID   string `json:"event_id"`
	Capacity  int    `json:"capacity"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
