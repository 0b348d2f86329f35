// Package repository defines persistence for events, registrations and payments
// and provides PostgreSQL and in-memory implementations.
package repository

import (
	"context"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/shopspring/decimal"
)

// Store persists domain records. Each call is atomic on its own;
// CancelEventCascade is the only multi-row transactional write.
//
// Load* methods return an error wrapping model.ErrNotFound when the row does
// not exist. SaveEvent never writes the reserved-slot counter.
type Store interface {
	CreateEvent(ctx context.Context, e *model.Event, kits []model.Kit, categories []model.Category) error
	LoadEvent(ctx context.Context, id string) (*model.Event, error)
	SaveEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error)

	LoadRegistration(ctx context.Context, id string) (*model.Registration, error)
	SaveRegistration(ctx context.Context, r *model.Registration) error
	// FindHoldingRegistration returns the participant's Pending or Confirmed
	// registration for the event.
	FindHoldingRegistration(ctx context.Context, eventID, participantID string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)

	LoadPayment(ctx context.Context, registrationID string) (*model.Payment, error)
	// SavePayment inserts the payment or updates the existing row for the same
	// registration. There is never more than one row per registration.
	SavePayment(ctx context.Context, p *model.Payment) error

	// CancelEventCascade writes the event and all given registrations in one
	// transaction.
	CancelEventCascade(ctx context.Context, e *model.Event, regs []model.Registration) error

	SaveNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, eventID string) ([]model.Notification, error)
}

// SlotCounter owns the per-event reserved counter. Only the capacity ledger
// calls it.
type SlotCounter interface {
	// ReserveSlot increments the counter if it is below capacity and reports
	// whether a slot was taken.
	ReserveSlot(ctx context.Context, eventID string) (bool, error)
	// ReleaseSlot decrements the counter. It returns ErrInvalidStateTransition
	// if the counter is already zero.
	ReleaseSlot(ctx context.Context, eventID string) error
	// SlotUsage returns the reserved count and the capacity.
	SlotUsage(ctx context.Context, eventID string) (reserved, capacity int, err error)
}

// Catalog is the read-only reference for the kits and categories an event
// offers.
type Catalog interface {
	LoadKit(ctx context.Context, kitID string) (*model.Kit, error)
	ListKits(ctx context.Context, eventID string) ([]model.Kit, error)
	LoadCategory(ctx context.Context, categoryID string) (*model.Category, error)
	ListCategories(ctx context.Context, eventID string) ([]model.Category, error)
}

// KitSurcharge returns the surcharge of kitID, or zero when kitID is empty.
func KitSurcharge(ctx context.Context, c Catalog, kitID string) (decimal.Decimal, error) {
	if kitID == "" {
		return decimal.Zero, nil
	}
	kit, err := c.LoadKit(ctx, kitID)
	if err != nil {
		return decimal.Zero, err
	}
	return kit.Surcharge, nil
}
