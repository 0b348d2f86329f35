package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// scripted returns the given outcomes in order and counts the calls.
func scripted(calls *atomic.Int32, outcomes ...bool) payment.Processor {
	return processorFunc(func(context.Context, model.PaymentMethod) (bool, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(outcomes) {
			return outcomes[len(outcomes)-1], nil
		}
		return outcomes[n], nil
	})
}

func TestSubmitPaymentConfirmsRegistration(t *testing.T) {
	proc := payment.NewSimulated(config.Settlement{SuccessRate: 0.95, DelayCard: time.Second},
		payment.WithAfter(immediate),
		payment.WithDraw(func() float64 { return 0.1 }),
	)
	f := newFixture(t, proc, time.Second)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{KitID: f.kitOf(t, ev.ID)})
	require.NoError(t, err)

	out, err := f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, out.Payment.Status)
	assert.Equal(t, model.RegistrationConfirmed, out.Registration.Status)
	assert.True(t, out.Payment.Amount.Equal(decimal.RequireFromString("65.50")), out.Payment.Amount.String())
	assert.Equal(t, 1, out.Payment.Attempts)
	assert.Equal(t, 4, f.available(t, ev.ID))
}

func TestSubmitPaymentTwiceIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, scripted(&calls, true), time.Second)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)

	first, err := f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodInstantTransfer)
	require.NoError(t, err)
	second, err := f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodCard)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.True(t, first.Payment.Amount.Equal(second.Payment.Amount))
	assert.Equal(t, model.PaymentPaid, second.Payment.Status)
	assert.Equal(t, model.MethodInstantTransfer, second.Payment.Method)
	assert.Equal(t, model.RegistrationConfirmed, second.Registration.Status)
	assert.Equal(t, 4, f.available(t, ev.ID))
}

func TestConcurrentSubmitPaymentSettlesOnce(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, scripted(&calls, true), time.Second)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]string, 6)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodCard)
			if assert.NoError(t, err) {
				ids[i] = out.Payment.ID
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestDeclinedPaymentCanBeRetried(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, scripted(&calls, false, false, true), time.Second)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)

	for range 2 {
		_, err = f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodBankSlip)
		assert.ErrorIs(t, err, model.ErrPaymentFailed)

		p, err := f.settlement.Payment(ctx, participant("p-1"), reg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentFailed, p.Status)

		stored, err := f.store.LoadRegistration(ctx, reg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RegistrationPending, stored.Status)
	}

	out, err := f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodBankSlip)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, out.Payment.Status)
	assert.Equal(t, 3, out.Payment.Attempts)
	assert.Equal(t, model.RegistrationConfirmed, out.Registration.Status)
}

func TestSettlementTimeoutRecordsFailure(t *testing.T) {
	slow := processorFunc(func(ctx context.Context, _ model.PaymentMethod) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	f := newFixture(t, slow, 20*time.Millisecond)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)

	_, err = f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodCard)
	assert.ErrorIs(t, err, model.ErrPaymentFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p, err := f.store.LoadPayment(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.Equal(t, 4, f.available(t, ev.ID))
}

func TestSubmitPaymentRejectsCancelledRegistration(t *testing.T) {
	f := newFixture(t, alwaysPaid(), time.Second)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)
	_, err = f.registrations.Cancel(ctx, reg.ID, participant("p-1"))
	require.NoError(t, err)

	_, err = f.settlement.Submit(ctx, participant("p-1"), reg.ID, model.MethodCard)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	_, err = f.store.LoadPayment(ctx, reg.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmitPaymentValidatesCaller(t *testing.T) {
	f := newFixture(t, alwaysPaid(), time.Second)
	ctx := context.Background()
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(ctx, ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)

	_, err = f.settlement.Submit(ctx, participant("p-2"), reg.ID, model.MethodCard)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
	_, err = f.settlement.Submit(ctx, participant("p-1"), reg.ID, "cash")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.settlement.Submit(ctx, participant("p-1"), "missing", model.MethodCard)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.settlement.Payment(ctx, participant("p-2"), reg.ID)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
	_, err = f.settlement.Payment(ctx, admin, reg.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSharedSettlementSurvivesFirstCallerLeaving(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	slow := processorFunc(func(ctx context.Context, _ model.PaymentMethod) (bool, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
	f := newFixture(t, slow, 5*time.Second)
	ev := f.activeEvent(t, 5)

	reg, err := f.registrations.Create(context.Background(), ev.ID, "p-1", model.RegisterRequest{})
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.settlement.Submit(firstCtx, participant("p-1"), reg.ID, model.MethodCard)
		firstErr <- err
	}()
	<-entered

	type result struct {
		out *model.PaymentOutcome
		err error
	}
	second := make(chan result, 1)
	go func() {
		out, err := f.settlement.Submit(context.Background(), participant("p-1"), reg.ID, model.MethodCard)
		second <- result{out, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, model.PaymentPaid, res.out.Payment.Status)
	assert.Equal(t, model.RegistrationConfirmed, res.out.Registration.Status)
	assert.Equal(t, int32(1), calls.Load())

	p, err := f.store.LoadPayment(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
}
