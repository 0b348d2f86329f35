package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// slot is the reserved counter of one event. Each slot has its own mutex so
// reservations on different events never contend.
type slot struct {
	mu       sync.Mutex
	reserved int
	capacity int
}

// MemoryStore is an in-process Store, SlotCounter and Catalog. It is used
// for local development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	events        map[string]model.Event
	kits          map[string]model.Kit
	categories    map[string]model.Category
	registrations map[string]model.Registration
	payments      map[string]model.Payment // keyed by registration ID
	notifications map[string][]model.Notification

	slotsMu sync.RWMutex
	slots   map[string]*slot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]model.Event),
		kits:          make(map[string]model.Kit),
		categories:    make(map[string]model.Category),
		registrations: make(map[string]model.Registration),
		payments:      make(map[string]model.Payment),
		notifications: make(map[string][]model.Notification),
		slots:         make(map[string]*slot),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
}

func (s *MemoryStore) slot(eventID string) (*slot, bool) {
	s.slotsMu.RLock()
	defer s.slotsMu.RUnlock()
	sl, ok := s.slots[eventID]
	return sl, ok
}

// CreateEvent inserts a new event along with its kits and categories.
func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event, kits []model.Kit, categories []model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[e.ID]; exists {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	stored := *e
	stored.Reserved = 0
	s.events[e.ID] = stored
	for _, k := range kits {
		s.kits[k.ID] = k
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}

	s.slotsMu.Lock()
	s.slots[e.ID] = &slot{capacity: e.Capacity}
	s.slotsMu.Unlock()
	return nil
}

// LoadEvent returns a copy of the event with its current reserved count.
func (s *MemoryStore) LoadEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	e, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("event", id)
	}
	if sl, ok := s.slot(id); ok {
		sl.mu.Lock()
		e.Reserved = sl.reserved
		sl.mu.Unlock()
	}
	return &e, nil
}

// SaveEvent overwrites every field of an existing event except the counter.
func (s *MemoryStore) SaveEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return notFound("event", e.ID)
	}
	s.events[e.ID] = *e
	return nil
}

// ListEvents returns events ordered by creation time descending. An empty
// status returns all events.
func (s *MemoryStore) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.events))
	for id, e := range s.events {
		if status == "" || e.Status == status {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	events := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		e, err := s.LoadEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// LoadRegistration returns a copy of the registration.
func (s *MemoryStore) LoadRegistration(_ context.Context, id string) (*model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[id]
	if !ok {
		return nil, notFound("registration", id)
	}
	return &r, nil
}

// SaveRegistration inserts or replaces a registration.
func (s *MemoryStore) SaveRegistration(_ context.Context, r *model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[r.EventID]; !ok {
		return notFound("event", r.EventID)
	}
	s.registrations[r.ID] = *r
	return nil
}

// FindHoldingRegistration returns the participant's slot-holding registration.
func (s *MemoryStore) FindHoldingRegistration(_ context.Context, eventID, participantID string) (*model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.registrations {
		if r.EventID == eventID && r.ParticipantID == participantID && r.Status.Holding() {
			return &r, nil
		}
	}
	return nil, notFound("registration for participant", participantID)
}

// ListRegistrations returns all registrations of an event ordered by creation time.
func (s *MemoryStore) ListRegistrations(_ context.Context, eventID string) ([]model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var regs []model.Registration
	for _, r := range s.registrations {
		if r.EventID == eventID {
			regs = append(regs, r)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

// LoadPayment returns the payment of a registration.
func (s *MemoryStore) LoadPayment(_ context.Context, registrationID string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[registrationID]
	if !ok {
		return nil, notFound("payment for registration", registrationID)
	}
	return &p, nil
}

// SavePayment upserts on the registration ID and keeps the first row's ID.
// A Paid row is never overwritten.
func (s *MemoryStore) SavePayment(_ context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[p.RegistrationID]; !ok {
		return notFound("registration", p.RegistrationID)
	}
	if existing, ok := s.payments[p.RegistrationID]; ok {
		if existing.Status == model.PaymentPaid {
			return fmt.Errorf("%w: payment for registration %s is already paid",
				model.ErrInvalidStateTransition, p.RegistrationID)
		}
		p.ID = existing.ID
	}
	s.payments[p.RegistrationID] = *p
	return nil
}

// CancelEventCascade applies the event and registration writes under one lock.
func (s *MemoryStore) CancelEventCascade(_ context.Context, e *model.Event, regs []model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return notFound("event", e.ID)
	}
	for _, r := range regs {
		if r.EventID != e.ID {
			return fmt.Errorf("registration %s does not belong to event %s", r.ID, e.ID)
		}
		if _, ok := s.registrations[r.ID]; !ok {
			return notFound("registration", r.ID)
		}
	}
	s.events[e.ID] = *e
	for _, r := range regs {
		s.registrations[r.ID] = r
	}
	return nil
}

// SaveNotification appends a notification record.
func (s *MemoryStore) SaveNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.EventID] = append(s.notifications[n.EventID], *n)
	return nil
}

// ListNotifications returns the notifications recorded for an event.
func (s *MemoryStore) ListNotifications(_ context.Context, eventID string) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Notification, len(s.notifications[eventID]))
	copy(out, s.notifications[eventID])
	return out, nil
}

// ReserveSlot takes one slot if any remain.
func (s *MemoryStore) ReserveSlot(_ context.Context, eventID string) (bool, error) {
	sl, ok := s.slot(eventID)
	if !ok {
		return false, notFound("event", eventID)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.reserved >= sl.capacity {
		return false, nil
	}
	sl.reserved++
	return true, nil
}

// ReleaseSlot gives one slot back.
func (s *MemoryStore) ReleaseSlot(_ context.Context, eventID string) error {
	sl, ok := s.slot(eventID)
	if !ok {
		return notFound("event", eventID)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.reserved == 0 {
		return fmt.Errorf("%w: release on empty counter for event %s", model.ErrInvalidStateTransition, eventID)
	}
	sl.reserved--
	return nil
}

// SlotUsage returns the reserved count and capacity of an event.
func (s *MemoryStore) SlotUsage(_ context.Context, eventID string) (int, int, error) {
	sl, ok := s.slot(eventID)
	if !ok {
		return 0, 0, notFound("event", eventID)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.reserved, sl.capacity, nil
}

// LoadKit returns a kit by ID.
func (s *MemoryStore) LoadKit(_ context.Context, kitID string) (*model.Kit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kits[kitID]
	if !ok {
		return nil, notFound("kit", kitID)
	}
	return &k, nil
}

// ListKits returns the kits offered by an event, ordered by name.
func (s *MemoryStore) ListKits(_ context.Context, eventID string) ([]model.Kit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Kit
	for _, k := range s.kits {
		if k.EventID == eventID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadCategory returns a category by ID.
func (s *MemoryStore) LoadCategory(_ context.Context, categoryID string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return nil, notFound("category", categoryID)
	}
	return &c, nil
}

// ListCategories returns the categories offered by an event, ordered by name.
func (s *MemoryStore) ListCategories(_ context.Context, eventID string) ([]model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Category
	for _, c := range s.categories {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
