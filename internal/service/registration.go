package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-admission/internal/ledger"
	"github.com/Shivanand-hulikatti/event-admission/internal/lock"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RegistrationService drives the registration state machine.
type RegistrationService struct {
	store   repository.Store
	catalog repository.Catalog
	ledger  *ledger.Ledger
	locks   lock.Locker
	now     Clock
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(
	store repository.Store,
	catalog repository.Catalog,
	l *ledger.Ledger,
	locks lock.Locker,
	now Clock,
) *RegistrationService {
	return &RegistrationService{store: store, catalog: catalog, ledger: l, locks: locks, now: now}
}

// Create claims a slot of eventID for participantID and stores a Pending
// registration. Nothing is written when any precondition fails.
func (s *RegistrationService) Create(ctx context.Context, eventID, participantID string, req model.RegisterRequest) (reg *model.Registration, err error) {
	defer func() { metrics.TrackRegistration(outcome(err)) }()

	if participantID == "" {
		return nil, model.ErrUnauthenticated
	}
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", model.ErrInvalidInput)
	}
	if err := s.checkOffered(ctx, eventID, req); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, eventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	defer unlock()

	ev, err := s.store.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := ev.AcceptsRegistrations(s.now()); err != nil {
		return nil, err
	}

	_, err = s.store.FindHoldingRegistration(ctx, eventID, participantID)
	switch {
	case err == nil:
		return nil, model.ErrDuplicateRegistration
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("check duplicate: %w", err)
	}

	if err := s.ledger.TryReserve(ctx, eventID); err != nil {
		return nil, err
	}

	now := s.now()
	reg = &model.Registration{
		ID:            uuid.New().String(),
		EventID:       eventID,
		ParticipantID: participantID,
		CategoryID:    req.CategoryID,
		KitID:         req.KitID,
		Status:        model.RegistrationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.SaveRegistration(ctx, reg); err != nil {
		if relErr := s.ledger.Release(ctx, eventID); relErr != nil {
			log.WithError(relErr).WithField("event_id", eventID).Error("compensating slot release")
		}
		if errors.Is(err, model.ErrDuplicateRegistration) {
			return nil, err
		}
		return nil, fmt.Errorf("save registration: %w", err)
	}

	log.WithFields(log.Fields{
		"event_id":        eventID,
		"registration_id": reg.ID,
		"participant_id":  participantID,
	}).Info("registration created")
	return reg, nil
}

// checkOffered verifies that the requested kit and category belong to eventID.
func (s *RegistrationService) checkOffered(ctx context.Context, eventID string, req model.RegisterRequest) error {
	if req.KitID != "" {
		kit, err := s.catalog.LoadKit(ctx, req.KitID)
		if err != nil {
			return err
		}
		if kit.EventID != eventID {
			return fmt.Errorf("%w: kit %s is not offered by event %s", model.ErrInvalidInput, req.KitID, eventID)
		}
	}
	if req.CategoryID != "" {
		cat, err := s.catalog.LoadCategory(ctx, req.CategoryID)
		if err != nil {
			return err
		}
		if cat.EventID != eventID {
			return fmt.Errorf("%w: category %s is not offered by event %s", model.ErrInvalidInput, req.CategoryID, eventID)
		}
	}
	return nil
}

// Confirm moves a Pending registration to Confirmed. It only succeeds once a
// Paid payment is stored for the registration; anything else is a contract
// violation reported as model.ErrInvalidStateTransition.
func (s *RegistrationService) Confirm(ctx context.Context, registrationID string) (*model.Registration, error) {
	reg, err := s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, eventKey(reg.EventID))
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	defer unlock()

	p, err := s.store.LoadPayment(ctx, registrationID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if p == nil || p.Status != model.PaymentPaid {
		return nil, fmt.Errorf("%w: registration %s has no settled payment",
			model.ErrInvalidStateTransition, registrationID)
	}

	reg, err = s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := reg.Status.TransitionTo(model.RegistrationConfirmed); err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationConfirmed
	reg.UpdatedAt = s.now()
	if err := s.store.SaveRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}

	log.WithFields(log.Fields{"event_id": reg.EventID, "registration_id": reg.ID}).Info("registration confirmed")
	return reg, nil
}

// Cancel moves a Pending or Confirmed registration to Cancelled and releases
// its slot. Only the owning participant may cancel; event-wide cancellation
// goes through EventLifecycle.Cancel.
//
// Cancel waits for an in-flight settlement of the registration to finish, so
// a payment is never settled for a registration cancelled underneath it.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID string, actor model.Actor) (*model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reg, err := s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != actor.ID {
		return nil, model.ErrPermissionDenied
	}

	// Same order as settlement: settlement lock, then event lock.
	unlockSettlement, err := s.locks.Lock(ctx, settlementKey(registrationID))
	if err != nil {
		return nil, fmt.Errorf("lock settlement: %w", err)
	}
	defer unlockSettlement()

	unlock, err := s.locks.Lock(ctx, eventKey(reg.EventID))
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	defer unlock()

	reg, err = s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := reg.Status.TransitionTo(model.RegistrationCancelled); err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationCancelled
	reg.UpdatedAt = s.now()
	if err := s.store.SaveRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}
	if err := s.ledger.Release(ctx, reg.EventID); err != nil {
		return reg, fmt.Errorf("registration cancelled but slot not released: %w", err)
	}

	log.WithFields(log.Fields{"event_id": reg.EventID, "registration_id": reg.ID}).Info("registration cancelled")
	return reg, nil
}

// cascadeCancel cancels every slot-holding registration of ev together with
// the event status write, then releases one slot per cancelled registration.
// The caller holds the event lock and has already set ev.Status.
func (s *RegistrationService) cascadeCancel(ctx context.Context, ev *model.Event) ([]model.Registration, error) {
	all, err := s.store.ListRegistrations(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	now := s.now()
	var cancelled []model.Registration
	for _, r := range all {
		if !r.Status.Holding() {
			continue
		}
		if err := r.Status.TransitionTo(model.RegistrationCancelled); err != nil {
			return nil, err
		}
		r.Status = model.RegistrationCancelled
		r.UpdatedAt = now
		cancelled = append(cancelled, r)
	}

	if err := s.store.CancelEventCascade(ctx, ev, cancelled); err != nil {
		return nil, fmt.Errorf("cancel event cascade: %w", err)
	}

	var releaseErrs []error
	for _, r := range cancelled {
		if err := s.ledger.Release(ctx, ev.ID); err != nil {
			releaseErrs = append(releaseErrs, fmt.Errorf("registration %s: %w", r.ID, err))
		}
	}
	if err := errors.Join(releaseErrs...); err != nil {
		return cancelled, fmt.Errorf("event cancelled but slots not released: %w", err)
	}
	return cancelled, nil
}
