// Package scheduler keeps at most one pending deferred charge per
// subscription on top of a pluggable Deferrer.
//
// A Deferrer is the host's "call me back at time T" primitive. The
// Scheduler adds the handle table: scheduling a new charge for a
// subscription replaces and cancels the previous one, and callbacks from a
// replaced handle are dropped before they reach the executor.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/internal/keylock"
)

// Payload is captured when a charge is scheduled and handed back when it
// fires.
type Payload struct {
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Version        uint64            `json:"version"`
}

// Handle identifies one deferred call.
type Handle string

// Callback receives fired deferred calls.
type Callback func(ctx context.Context, h Handle, p Payload)

// Deferrer schedules a callback at an absolute time. Implementations must
// deliver each scheduled call at most once and never before its time.
type Deferrer interface {
	// Bind sets the callback. It is called once, before any ScheduleAt.
	Bind(cb Callback)
	ScheduleAt(ctx context.Context, at time.Time, p Payload) (Handle, error)
	// Cancel is best effort. Unknown or already fired handles are not an
	// error.
	Cancel(ctx context.Context, h Handle) error
}

// Handler processes a fired charge.
type Handler func(ctx context.Context, p Payload)

// Pending is one entry of the handle table.
type Pending struct {
	Handle  Handle    `json:"handle"`
	At      time.Time `json:"at"`
	Version uint64    `json:"version"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler is safe for concurrent use. Deferrer calls for one subscription
// are serialized; calls for different subscriptions run in parallel.
type Scheduler struct {
	deferrer Deferrer
	logger   *slog.Logger
	subs     keylock.Map[id.SubscriptionID]

	// mu guards the table only and is never held across Deferrer calls.
	mu      sync.Mutex
	pending map[id.SubscriptionID]Pending
	handler Handler
}

// New binds the scheduler to d.
func New(d Deferrer, opts ...Option) *Scheduler {
	s := &Scheduler{
		deferrer: d,
		logger:   slog.Default(),
		pending:  make(map[id.SubscriptionID]Pending),
	}
	for _, opt := range opts {
		opt(s)
	}
	d.Bind(s.dispatch)
	return s
}

// SetHandler sets the function fired charges are delivered to.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// ScheduleNext arms a charge for subID at at, capturing version. Any
// pending charge for the subscription is replaced and cancelled.
func (s *Scheduler) ScheduleNext(ctx context.Context, subID id.SubscriptionID, version uint64, at time.Time) (Handle, error) {
	unlock := s.subs.Lock(subID)
	defer unlock()

	h, err := s.deferrer.ScheduleAt(ctx, at, Payload{SubscriptionID: subID, Version: version})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	prev, hadPrev := s.pending[subID]
	s.pending[subID] = Pending{Handle: h, At: at, Version: version}
	s.mu.Unlock()

	if hadPrev {
		s.cancelHandle(ctx, subID, prev.Handle)
	}
	return h, nil
}

// Cancel removes the pending charge for subID, reporting whether one existed.
func (s *Scheduler) Cancel(ctx context.Context, subID id.SubscriptionID) bool {
	unlock := s.subs.Lock(subID)
	defer unlock()

	s.mu.Lock()
	prev, ok := s.pending[subID]
	delete(s.pending, subID)
	s.mu.Unlock()

	if ok {
		s.cancelHandle(ctx, subID, prev.Handle)
	}
	return ok
}

// Pending returns the pending entry for subID.
func (s *Scheduler) Pending(subID id.SubscriptionID) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[subID]
	return p, ok
}

// Len returns the number of subscriptions with a pending charge.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) cancelHandle(ctx context.Context, subID id.SubscriptionID, h Handle) {
	if err := s.deferrer.Cancel(ctx, h); err != nil {
		s.logger.Warn("cancel deferred charge failed",
			"subscription_id", subID.String(),
			"handle", string(h),
			"error", err,
		)
	}
}

// dispatch waits out an in-flight ScheduleNext for the same subscription so
// a call that fires before its handle is recorded is not taken as superseded.
func (s *Scheduler) dispatch(ctx context.Context, h Handle, p Payload) {
	unlock := s.subs.Lock(p.SubscriptionID)
	s.mu.Lock()
	cur, ok := s.pending[p.SubscriptionID]
	if ok && cur.Handle != h {
		s.mu.Unlock()
		unlock()
		s.logger.Debug("dropping superseded deferred charge",
			"subscription_id", p.SubscriptionID.String(),
			"handle", string(h),
		)
		return
	}
	if ok {
		delete(s.pending, p.SubscriptionID)
	}
	handler := s.handler
	s.mu.Unlock()
	unlock()

	if handler != nil {
		handler(ctx, p)
	}
}
