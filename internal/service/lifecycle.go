package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/lock"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventLifecycle owns event status. It gates registration through the Active
// status and cascades cancellation to registrations.
type EventLifecycle struct {
	store         repository.Store
	registrations *RegistrationService
	locks         lock.Locker
	notifier      notify.Notifier
	notifyTimeout time.Duration
	now           Clock

	inflight sync.WaitGroup
}

// NewEventLifecycle constructs an EventLifecycle.
func NewEventLifecycle(
	store repository.Store,
	registrations *RegistrationService,
	locks lock.Locker,
	notifier notify.Notifier,
	notifyTimeout time.Duration,
	now Clock,
) *EventLifecycle {
	return &EventLifecycle{
		store:         store,
		registrations: registrations,
		locks:         locks,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		now:           now,
	}
}

// Decide applies an administrative decision using a two-step protocol: an
// unconfirmed request only describes the pending change; a confirmed request
// performs it.
func (l *EventLifecycle) Decide(ctx context.Context, actor model.Actor, eventID string, req model.DecisionRequest) (*model.DecisionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin {
		return nil, model.ErrPermissionDenied
	}

	var target model.EventStatus
	switch req.Decision {
	case model.DecisionApprove:
		target = model.EventActive
	case model.DecisionDeny:
		target = model.EventDenied
		if strings.TrimSpace(req.Feedback) == "" {
			return nil, model.ErrMissingFeedback
		}
	default:
		return nil, fmt.Errorf("%w: decision must be %q or %q", model.ErrInvalidInput, model.DecisionApprove, model.DecisionDeny)
	}

	ev, err := l.store.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := ev.Status.TransitionTo(target); err != nil {
		return nil, err
	}

	if !req.Confirmed {
		desc := fmt.Sprintf("event %q will change from %s to %s", ev.Name, ev.Status, target)
		if target == model.EventDenied {
			desc += fmt.Sprintf(" with feedback %q", strings.TrimSpace(req.Feedback))
		}
		return &model.DecisionResult{
			EventID:              ev.ID,
			From:                 ev.Status,
			To:                   target,
			ConfirmationRequired: true,
			Description:          desc + "; resubmit with confirmed=true to apply",
		}, nil
	}

	from := ev.Status
	if target == model.EventActive {
		ev, err = l.Approve(ctx, eventID)
	} else {
		ev, err = l.Deny(ctx, eventID, req.Feedback)
	}
	if err != nil {
		return nil, err
	}
	return &model.DecisionResult{
		EventID:     ev.ID,
		From:        from,
		To:          ev.Status,
		Description: fmt.Sprintf("event %q changed from %s to %s", ev.Name, from, ev.Status),
		Event:       ev,
	}, nil
}

// Approve moves a Pending event to Active and dispatches the approval notice.
func (l *EventLifecycle) Approve(ctx context.Context, eventID string) (*model.Event, error) {
	ev, err := l.transition(ctx, eventID, model.EventActive, "")
	if err != nil {
		return nil, err
	}
	l.dispatch(*ev, model.NotifyApproval, "")
	return ev, nil
}

// Deny moves a Pending event to Denied. Feedback is mandatory and is carried
// by the denial notice.
func (l *EventLifecycle) Deny(ctx context.Context, eventID, feedback string) (*model.Event, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, model.ErrMissingFeedback
	}
	ev, err := l.transition(ctx, eventID, model.EventDenied, feedback)
	if err != nil {
		return nil, err
	}
	l.dispatch(*ev, model.NotifyDenial, feedback)
	return ev, nil
}

func (l *EventLifecycle) transition(ctx context.Context, eventID string, to model.EventStatus, feedback string) (*model.Event, error) {
	unlock, err := l.locks.Lock(ctx, eventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	defer unlock()

	ev, err := l.store.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := ev.Status.TransitionTo(to); err != nil {
		return nil, err
	}
	from := ev.Status
	ev.Status = to
	ev.Feedback = feedback
	ev.UpdatedAt = l.now()
	if err := l.store.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}
	metrics.TrackEventTransition(string(to))
	log.WithFields(log.Fields{"event_id": eventID, "from": from, "to": to}).Info("event status changed")
	return ev, nil
}

// Cancel moves an Active event to Cancelled and, in the same atomic unit,
// cancels every Pending or Confirmed registration, releasing one slot each.
// Only the owning organizer or an admin may cancel.
func (l *EventLifecycle) Cancel(ctx context.Context, eventID string, actor model.Actor) (*model.Event, []model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}

	unlock, err := l.locks.Lock(ctx, eventKey(eventID))
	if err != nil {
		return nil, nil, fmt.Errorf("lock event: %w", err)
	}
	defer unlock()

	ev, err := l.store.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if actor.Role != model.RoleAdmin && ev.OrganizerID != actor.ID {
		return nil, nil, model.ErrPermissionDenied
	}
	if err := ev.Status.TransitionTo(model.EventCancelled); err != nil {
		return nil, nil, err
	}
	ev.Status = model.EventCancelled
	ev.UpdatedAt = l.now()

	cancelled, err := l.registrations.cascadeCancel(ctx, ev)
	if err != nil && cancelled == nil {
		return nil, nil, err
	}
	metrics.TrackEventTransition(string(model.EventCancelled))
	log.WithFields(log.Fields{
		"event_id":      eventID,
		"registrations": len(cancelled),
		"actor_id":      actor.ID,
	}).Info("event cancelled")
	if err != nil {
		return ev, cancelled, err
	}

	if fresh, err := l.store.LoadEvent(ctx, eventID); err == nil {
		ev = fresh
	}
	return ev, cancelled, nil
}

// dispatch sends a notice in the background and records its outcome. A
// failed send never rolls back the transition.
func (l *EventLifecycle) dispatch(ev model.Event, kind model.NotificationKind, feedback string) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), l.notifyTimeout)
		defer cancel()

		var err error
		switch kind {
		case model.NotifyApproval:
			err = l.notifier.SendApproval(ctx, &ev)
		case model.NotifyDenial:
			err = l.notifier.SendDenial(ctx, &ev, feedback)
		}

		n := &model.Notification{
			ID:         uuid.New().String(),
			EventID:    ev.ID,
			Kind:       kind,
			Feedback:   feedback,
			Dispatched: err == nil,
			CreatedAt:  l.now(),
		}
		entry := log.WithFields(log.Fields{"event_id": ev.ID, "kind": kind})
		if err != nil {
			n.Error = err.Error()
			entry.WithError(err).Warn("notification dispatch failed")
		}
		metrics.TrackNotification(string(kind), n.Dispatched)

		recordCtx, recordCancel := context.WithTimeout(context.Background(), l.notifyTimeout)
		defer recordCancel()
		if err := l.store.SaveNotification(recordCtx, n); err != nil {
			entry.WithError(err).Error("record notification")
		}
	}()
}

// Notifications returns the recorded dispatches of an event.
func (l *EventLifecycle) Notifications(ctx context.Context, eventID string) ([]model.Notification, error) {
	if _, err := l.store.LoadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return l.store.ListNotifications(ctx, eventID)
}

// Wait blocks until all in-flight notification dispatches have finished.
func (l *EventLifecycle) Wait() {
	l.inflight.Wait()
}
