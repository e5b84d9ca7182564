// Package timer provides an in-process Deferrer backed by time.AfterFunc.
// Pending calls do not survive a restart.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/scheduler"
)

// Option configures a Deferrer.
type Option func(*Deferrer)

// WithClock sets the clock used to turn absolute times into delays.
func WithClock(now func() time.Time) Option {
	return func(d *Deferrer) { d.now = now }
}

// WithContext sets the context passed to fired callbacks.
func WithContext(ctx context.Context) Option {
	return func(d *Deferrer) { d.ctx = ctx }
}

// Deferrer is safe for concurrent use.
type Deferrer struct {
	now func() time.Time
	ctx context.Context

	mu     sync.Mutex
	timers map[scheduler.Handle]*time.Timer
	cb     scheduler.Callback
	closed bool
}

var _ scheduler.Deferrer = (*Deferrer)(nil)

// New returns a timer Deferrer.
func New(opts ...Option) *Deferrer {
	d := &Deferrer{
		now:    time.Now,
		ctx:    context.Background(),
		timers: make(map[scheduler.Handle]*time.Timer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bind implements scheduler.Deferrer.
func (d *Deferrer) Bind(cb scheduler.Callback) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

// ScheduleAt implements scheduler.Deferrer. Times in the past fire
// immediately.
func (d *Deferrer) ScheduleAt(_ context.Context, at time.Time, p scheduler.Payload) (scheduler.Handle, error) {
	h := scheduler.Handle(id.NewCallID().String())
	delay := max(at.Sub(d.now()), 0)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}
	d.timers[h] = time.AfterFunc(delay, func() { d.fire(h, p) })
	return h, nil
}

// Cancel implements scheduler.Deferrer.
func (d *Deferrer) Cancel(_ context.Context, h scheduler.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[h]; ok {
		t.Stop()
		delete(d.timers, h)
	}
	return nil
}

// Len returns the number of calls not yet fired.
func (d *Deferrer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Close stops every pending timer. Later ScheduleAt calls fail.
func (d *Deferrer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, t := range d.timers {
		t.Stop()
		delete(d.timers, h)
	}
	d.closed = true
}

func (d *Deferrer) fire(h scheduler.Handle, p scheduler.Payload) {
	d.mu.Lock()
	_, ok := d.timers[h]
	delete(d.timers, h)
	cb := d.cb
	d.mu.Unlock()

	if ok && cb != nil {
		cb(d.ctx, h, p)
	}
}
