// Package ledger implements per-event slot accounting.
//
// The ledger is the only writer of an event's reserved counter. TryReserve
// performs the capacity check and the increment as one step against the
// backing SlotCounter, which serializes per event only.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	log "github.com/sirupsen/logrus"
)

// Ledger reserves and releases event slots.
type Ledger struct {
	counter repository.SlotCounter
}

// New constructs a Ledger over counter.
func New(counter repository.SlotCounter) *Ledger {
	return &Ledger{counter: counter}
}

// TryReserve claims one slot of eventID. It returns model.ErrCapacityExceeded
// when the event is full; that is an expected outcome, not a fault.
func (l *Ledger) TryReserve(ctx context.Context, eventID string) error {
	ok, err := l.counter.ReserveSlot(ctx, eventID)
	if err != nil {
		metrics.TrackSlot("reserve", "error")
		return fmt.Errorf("reserve slot: %w", err)
	}
	if !ok {
		metrics.TrackSlot("reserve", "exceeded")
		return model.ErrCapacityExceeded
	}
	metrics.TrackSlot("reserve", "reserved")
	return nil
}

// Release returns one slot of eventID. Callers must release at most once per
// successful TryReserve; a release on an empty counter is reported as
// model.ErrInvalidStateTransition.
func (l *Ledger) Release(ctx context.Context, eventID string) error {
	if err := l.counter.ReleaseSlot(ctx, eventID); err != nil {
		metrics.TrackSlot("release", "error")
		if errors.Is(err, model.ErrInvalidStateTransition) {
			log.WithField("event_id", eventID).Error("slot release without matching reservation")
		}
		return fmt.Errorf("release slot: %w", err)
	}
	metrics.TrackSlot("release", "released")
	return nil
}

// Availability reports the slot usage of eventID.
func (l *Ledger) Availability(ctx context.Context, eventID string) (model.Availability, error) {
	reserved, capacity, err := l.counter.SlotUsage(ctx, eventID)
	if err != nil {
		return model.Availability{}, fmt.Errorf("slot usage: %w", err)
	}
	available := capacity - reserved
	if available < 0 {
		available = 0
	}
	return model.Availability{
		EventID:   eventID,
		Capacity:  capacity,
		Reserved:  reserved,
		Available: available,
	}, nil
}
