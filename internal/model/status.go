package model

import "fmt"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventPending   EventStatus = "Pending"
	EventActive    EventStatus = "Active"
	EventDenied    EventStatus = "Denied"
	EventCancelled EventStatus = "Cancelled"
)

var eventTransitions = map[EventStatus][]EventStatus{
	EventPending: {EventActive, EventDenied},
	EventActive:  {EventCancelled},
}

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPending, EventActive, EventDenied, EventCancelled:
		return true
	}
	return false
}

// TransitionTo returns nil when s may move to next, and an error wrapping
// ErrInvalidStateTransition otherwise.
func (s EventStatus) TransitionTo(next EventStatus) error {
	return checkTransition("event", s, next, eventTransitions)
}

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "Pending"
	RegistrationConfirmed RegistrationStatus = "Confirmed"
	RegistrationCancelled RegistrationStatus = "Cancelled"
)

var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationPending:   {RegistrationConfirmed, RegistrationCancelled},
	RegistrationConfirmed: {RegistrationCancelled},
}

// Valid reports whether s is a known registration status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationPending, RegistrationConfirmed, RegistrationCancelled:
		return true
	}
	return false
}

// Holding reports whether a registration in this state occupies a slot.
func (s RegistrationStatus) Holding() bool {
	return s == RegistrationPending || s == RegistrationConfirmed
}

// TransitionTo returns nil when s may move to next.
func (s RegistrationStatus) TransitionTo(next RegistrationStatus) error {
	return checkTransition("registration", s, next, registrationTransitions)
}

// PaymentStatus is the settlement state of a payment row.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

// Pending and Failed may be re-attempted; Paid is terminal.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPending, PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPending, PaymentPaid, PaymentFailed},
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// TransitionTo returns nil when s may move to next.
func (s PaymentStatus) TransitionTo(next PaymentStatus) error {
	return checkTransition("payment", s, next, paymentTransitions)
}

// PaymentMethod selects the simulated settlement channel.
type PaymentMethod string

const (
	MethodInstantTransfer PaymentMethod = "instant-transfer"
	MethodBankSlip        PaymentMethod = "bank-slip"
	MethodCard            PaymentMethod = "card"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodInstantTransfer, MethodBankSlip, MethodCard:
		return true
	}
	return false
}

func checkTransition[S ~string](kind string, from, to S, table map[S][]S) error {
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidStateTransition, kind, from, to)
}
