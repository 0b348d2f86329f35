package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/lock"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/payment"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Settlement resolves Pending registrations through the payment processor.
//
// Attempts for one registration are serialized by the settlement lock, and
// concurrent duplicate calls within a process share a single attempt. The
// payment row is created on the first attempt and updated on every later
// one; once Paid it is never overwritten.
type Settlement struct {
	store         repository.Store
	catalog       repository.Catalog
	registrations *RegistrationService
	processor     payment.Processor
	locks         lock.Locker
	timeout       time.Duration
	now           Clock

	group singleflight.Group
}

// NewSettlement constructs a Settlement.
func NewSettlement(
	store repository.Store,
	catalog repository.Catalog,
	registrations *RegistrationService,
	processor payment.Processor,
	locks lock.Locker,
	timeout time.Duration,
	now Clock,
) *Settlement {
	return &Settlement{
		store:         store,
		catalog:       catalog,
		registrations: registrations,
		processor:     processor,
		locks:         locks,
		timeout:       timeout,
		now:           now,
	}
}

// Submit runs one settlement attempt for the actor's registration. A Paid
// outcome confirms the registration. A declined or timed-out attempt returns
// an error wrapping model.ErrPaymentFailed; the registration stays Pending and
// the caller may resubmit. Resubmitting after Paid returns the stored outcome
// unchanged. A caller whose context ends while waiting gets ctx.Err(); the
// attempt itself runs to completion for the remaining callers.
func (s *Settlement) Submit(ctx context.Context, actor model.Actor, registrationID string, method model.PaymentMethod) (*model.PaymentOutcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", model.ErrInvalidInput, method)
	}
	reg, err := s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != actor.ID {
		return nil, model.ErrPermissionDenied
	}

	// The shared attempt outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := s.group.DoChan(registrationID, func() (any, error) {
		return s.settle(context.WithoutCancel(ctx), registrationID, method)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.WithField("registration_id", registrationID).Debug("settlement shared with concurrent duplicate")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.PaymentOutcome), nil
	}
}

func (s *Settlement) settle(ctx context.Context, registrationID string, method model.PaymentMethod) (*model.PaymentOutcome, error) {
	unlock, err := s.locks.Lock(ctx, settlementKey(registrationID))
	if err != nil {
		return nil, fmt.Errorf("lock settlement: %w", err)
	}
	defer unlock()

	entry := log.WithFields(log.Fields{"registration_id": registrationID, "method": method})

	reg, err := s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.LoadPayment(ctx, registrationID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	if existing != nil && existing.Status == model.PaymentPaid {
		// A previous attempt settled; finish confirmation if it was interrupted.
		if reg.Status == model.RegistrationPending {
			if reg, err = s.registrations.Confirm(ctx, registrationID); err != nil {
				return nil, err
			}
		}
		entry.Info("payment already settled")
		return &model.PaymentOutcome{Payment: existing, Registration: reg}, nil
	}

	if reg.Status != model.RegistrationPending {
		return nil, fmt.Errorf("%w: cannot settle a %s registration", model.ErrInvalidStateTransition, reg.Status)
	}

	amount, err := s.amount(ctx, reg)
	if err != nil {
		return nil, err
	}

	p := existing
	if p == nil {
		p = &model.Payment{ID: uuid.New().String(), RegistrationID: registrationID, Status: model.PaymentPending}
	} else if err := p.Status.TransitionTo(model.PaymentPending); err != nil {
		return nil, err
	}
	p.Status = model.PaymentPending
	p.Method = method
	p.Amount = amount
	p.Attempts++
	p.ProcessedAt = s.now()
	if err := s.store.SavePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	processCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	paid, procErr := s.processor.Process(processCtx, method)
	elapsed := time.Since(start)

	p.ProcessedAt = s.now()
	if procErr != nil || !paid {
		p.Status = model.PaymentFailed
		metrics.TrackSettlement(string(method), "failed", elapsed)

		// Record the failure even when the caller's context is gone.
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer saveCancel()
		if err := s.store.SavePayment(saveCtx, p); err != nil {
			return nil, fmt.Errorf("save payment: %w", err)
		}
		if procErr != nil {
			entry.WithError(procErr).Warn("settlement did not complete")
			return nil, fmt.Errorf("%w: %w", model.ErrPaymentFailed, procErr)
		}
		entry.Info("payment declined")
		return nil, fmt.Errorf("%w: declined by processor", model.ErrPaymentFailed)
	}

	p.Status = model.PaymentPaid
	metrics.TrackSettlement(string(method), "paid", elapsed)
	if err := s.store.SavePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	reg, err = s.registrations.Confirm(ctx, registrationID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidStateTransition) {
			entry.WithError(err).Error("payment settled for a registration that is no longer pending")
		}
		return nil, err
	}

	entry.WithField("amount", p.Amount.StringFixed(2)).Info("payment settled")
	return &model.PaymentOutcome{Payment: p, Registration: reg}, nil
}

// amount is the event base price plus the selected kit's surcharge.
func (s *Settlement) amount(ctx context.Context, reg *model.Registration) (decimal.Decimal, error) {
	ev, err := s.store.LoadEvent(ctx, reg.EventID)
	if err != nil {
		return decimal.Zero, err
	}
	surcharge, err := repository.KitSurcharge(ctx, s.catalog, reg.KitID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("kit surcharge: %w", err)
	}
	return ev.BasePrice.Add(surcharge), nil
}

// Payment returns the stored payment of a registration. Only the owning
// participant or an admin may read it.
func (s *Settlement) Payment(ctx context.Context, actor model.Actor, registrationID string) (*model.Payment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reg, err := s.store.LoadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != actor.ID && actor.Role != model.RoleAdmin {
		return nil, model.ErrPermissionDenied
	}
	return s.store.LoadPayment(ctx, registrationID)
}
