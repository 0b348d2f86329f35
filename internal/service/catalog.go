package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-admission/internal/ledger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxCapacity = 100_000

// EventCatalog handles organizer submissions and read access to events.
type EventCatalog struct {
	store  repository.Store
	refs   repository.Catalog
	ledger *ledger.Ledger
	now    Clock
}

// NewEventCatalog constructs an EventCatalog with its dependencies.
func NewEventCatalog(store repository.Store, refs repository.Catalog, l *ledger.Ledger, now Clock) *EventCatalog {
	return &EventCatalog{store: store, refs: refs, ledger: l, now: now}
}

// SubmitEvent validates the request and stores a Pending event owned by the
// organizer. The event accepts no registrations until an admin approves it.
func (c *EventCatalog) SubmitEvent(ctx context.Context, organizer model.Actor, req model.CreateEventRequest) (*model.Event, error) {
	if err := requireActor(organizer); err != nil {
		return nil, err
	}
	if organizer.Role != model.RoleOrganizer && organizer.Role != model.RoleAdmin {
		return nil, model.ErrPermissionDenied
	}
	if err := validateEvent(&req); err != nil {
		return nil, err
	}

	now := c.now()
	ev := &model.Event{
		ID:          uuid.New().String(),
		OrganizerID: organizer.ID,
		Name:        req.Name,
		Description: req.Description,
		StartsOn:    model.Day(req.StartsOn),
		EndsOn:      model.Day(req.EndsOn),
		Registration: model.Window{
			Start: model.Day(req.RegistrationStart),
			End:   model.Day(req.RegistrationEnd),
		},
		Capacity:  req.Capacity,
		BasePrice: req.BasePrice,
		Status:    model.EventPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	kits := make([]model.Kit, 0, len(req.Kits))
	for _, k := range req.Kits {
		kits = append(kits, model.Kit{
			ID:        uuid.New().String(),
			EventID:   ev.ID,
			Name:      strings.TrimSpace(k.Name),
			Surcharge: k.Surcharge,
		})
	}
	categories := make([]model.Category, 0, len(req.Categories))
	for _, name := range req.Categories {
		categories = append(categories, model.Category{
			ID:      uuid.New().String(),
			EventID: ev.ID,
			Name:    strings.TrimSpace(name),
		})
	}

	if err := c.store.CreateEvent(ctx, ev, kits, categories); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	log.WithFields(log.Fields{"event_id": ev.ID, "organizer_id": organizer.ID}).Info("event submitted")
	return ev, nil
}

func validateEvent(req *model.CreateEventRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Name == "":
		return fmt.Errorf("%w: event name is required", model.ErrInvalidInput)
	case req.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be a positive integer", model.ErrInvalidInput)
	case req.Capacity > maxCapacity:
		return fmt.Errorf("%w: capacity cannot exceed 100,000", model.ErrInvalidInput)
	case req.BasePrice.IsNegative():
		return fmt.Errorf("%w: base price cannot be negative", model.ErrInvalidInput)
	case req.RegistrationStart.IsZero() || req.RegistrationEnd.IsZero():
		return fmt.Errorf("%w: registration window is required", model.ErrInvalidInput)
	case model.Day(req.RegistrationEnd).Before(model.Day(req.RegistrationStart)):
		return fmt.Errorf("%w: registration window ends before it starts", model.ErrInvalidInput)
	case !req.StartsOn.IsZero() && !req.EndsOn.IsZero() && req.EndsOn.Before(req.StartsOn):
		return fmt.Errorf("%w: event ends before it starts", model.ErrInvalidInput)
	}
	for _, k := range req.Kits {
		if strings.TrimSpace(k.Name) == "" {
			return fmt.Errorf("%w: kit name is required", model.ErrInvalidInput)
		}
		if k.Surcharge.IsNegative() {
			return fmt.Errorf("%w: kit surcharge cannot be negative", model.ErrInvalidInput)
		}
	}
	for _, name := range req.Categories {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: category name is required", model.ErrInvalidInput)
		}
	}
	return nil
}

// GetEvent returns a single event by ID.
func (c *EventCatalog) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", model.ErrInvalidInput)
	}
	return c.store.LoadEvent(ctx, id)
}

// ListEvents returns events, optionally filtered by status.
func (c *EventCatalog) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, status)
	}
	return c.store.ListEvents(ctx, status)
}

// Kits returns the kits offered by an event.
func (c *EventCatalog) Kits(ctx context.Context, eventID string) ([]model.Kit, error) {
	if _, err := c.store.LoadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return c.refs.ListKits(ctx, eventID)
}

// Categories returns the participant categories offered by an event.
func (c *EventCatalog) Categories(ctx context.Context, eventID string) ([]model.Category, error) {
	if _, err := c.store.LoadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return c.refs.ListCategories(ctx, eventID)
}

// Availability reports slot usage of an event.
func (c *EventCatalog) Availability(ctx context.Context, eventID string) (model.Availability, error) {
	return c.ledger.Availability(ctx, eventID)
}

// ListRegistrations returns all registrations for an event. Only the
// organizer of the event or an admin may list them.
func (c *EventCatalog) ListRegistrations(ctx context.Context, actor model.Actor, eventID string) ([]model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ev, err := c.store.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin && ev.OrganizerID != actor.ID {
		return nil, model.ErrPermissionDenied
	}
	return c.store.ListRegistrations(ctx, eventID)
}
