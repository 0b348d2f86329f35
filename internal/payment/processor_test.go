package payment

import (
	"context"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSettlement = config.Settlement{
	SuccessRate:   0.95,
	DelayInstant:  time.Second,
	DelayBankSlip: 2 * time.Second,
	DelayCard:     3 * time.Second,
	Timeout:       10 * time.Second,
}

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestDelaysOrderedByMethod(t *testing.T) {
	p := NewSimulated(testSettlement)
	assert.Less(t, p.Delay(model.MethodInstantTransfer), p.Delay(model.MethodBankSlip))
	assert.Less(t, p.Delay(model.MethodBankSlip), p.Delay(model.MethodCard))
}

func TestOutcomeFollowsDraw(t *testing.T) {
	ctx := context.Background()

	ok, err := NewSimulated(testSettlement, WithAfter(immediate), WithDraw(func() float64 { return 0.10 })).
		Process(ctx, model.MethodCard)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewSimulated(testSettlement, WithAfter(immediate), WithDraw(func() float64 { return 0.99 })).
		Process(ctx, model.MethodCard)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeededOutcomesAreReproducible(t *testing.T) {
	ctx := context.Background()
	run := func() []bool {
		p := NewSimulated(testSettlement, WithAfter(immediate), WithSeed(42))
		out := make([]bool, 50)
		for i := range out {
			ok, err := p.Process(ctx, model.MethodInstantTransfer)
			require.NoError(t, err)
			out[i] = ok
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestProcessHonoursContext(t *testing.T) {
	never := func(time.Duration) <-chan time.Time { return make(chan time.Time) }
	p := NewSimulated(testSettlement, WithAfter(never))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Process(ctx, model.MethodCard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsupportedMethod(t *testing.T) {
	_, err := NewSimulated(testSettlement).Process(context.Background(), "cash")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
