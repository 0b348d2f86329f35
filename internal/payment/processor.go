// Package payment simulates the settlement step of a registration payment.
package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// Processor settles one payment attempt. It returns true on success and
// false on a declined payment; an error means the attempt did not complete.
type Processor interface {
	Process(ctx context.Context, method model.PaymentMethod) (bool, error)
}

// Simulated is a Processor whose latency depends on the method and whose
// outcome is drawn from an injectable random source.
type Simulated struct {
	successRate float64
	delays      map[model.PaymentMethod]time.Duration

	mu    sync.Mutex
	draw  func() float64
	after func(time.Duration) <-chan time.Time
}

// Option customises a Simulated processor.
type Option func(*Simulated)

// WithSeed makes outcomes reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulated) {
		r := rand.New(rand.NewPCG(seed, seed))
		s.draw = r.Float64
	}
}

// WithDraw replaces the random source. draw must return values in [0,1).
func WithDraw(draw func() float64) Option {
	return func(s *Simulated) { s.draw = draw }
}

// WithAfter replaces the timer used to simulate latency.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Simulated) { s.after = after }
}

// NewSimulated builds a processor from settlement configuration.
func NewSimulated(cfg config.Settlement, opts ...Option) *Simulated {
	s := &Simulated{
		successRate: cfg.SuccessRate,
		delays: map[model.PaymentMethod]time.Duration{
			model.MethodInstantTransfer: cfg.DelayInstant,
			model.MethodBankSlip:        cfg.DelayBankSlip,
			model.MethodCard:            cfg.DelayCard,
		},
		draw:  rand.Float64,
		after: time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the simulated latency of method.
func (s *Simulated) Delay(method model.PaymentMethod) time.Duration {
	return s.delays[method]
}

// Process waits for the method's latency, then draws the outcome. It returns
// ctx.Err() if ctx is done first.
func (s *Simulated) Process(ctx context.Context, method model.PaymentMethod) (bool, error) {
	delay, ok := s.delays[method]
	if !ok {
		return false, fmt.Errorf("%w: unsupported payment method %q", model.ErrInvalidInput, method)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-s.after(delay):
		}
	} else if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	v := s.draw()
	s.mu.Unlock()
	return v < s.successRate, nil
}
