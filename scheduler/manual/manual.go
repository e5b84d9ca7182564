// Package manual provides a virtual-time Deferrer. Nothing fires until the
// owner advances the clock, which makes it the deferrer of choice for
// simulations and tests.
package manual

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/scheduler"
)

type call struct {
	handle  scheduler.Handle
	at      time.Time
	seq     uint64
	payload scheduler.Payload
}

// Deferrer holds deferred calls in time order against a virtual clock.
type Deferrer struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	calls []call
	cb    scheduler.Callback
}

var _ scheduler.Deferrer = (*Deferrer)(nil)

// New returns a Deferrer whose clock starts at start.
func New(start time.Time) *Deferrer {
	return &Deferrer{now: start.UTC()}
}

// Now returns the virtual time. It can be passed as the engine clock.
func (d *Deferrer) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// Bind implements scheduler.Deferrer.
func (d *Deferrer) Bind(cb scheduler.Callback) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

// ScheduleAt implements scheduler.Deferrer.
func (d *Deferrer) ScheduleAt(_ context.Context, at time.Time, p scheduler.Payload) (scheduler.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	c := call{
		handle:  scheduler.Handle(id.NewCallID().String()),
		at:      at.UTC(),
		seq:     d.seq,
		payload: p,
	}
	i := sort.Search(len(d.calls), func(i int) bool {
		return d.calls[i].at.After(c.at)
	})
	d.calls = append(d.calls, call{})
	copy(d.calls[i+1:], d.calls[i:])
	d.calls[i] = c
	return c.handle, nil
}

// Cancel implements scheduler.Deferrer.
func (d *Deferrer) Cancel(_ context.Context, h scheduler.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.calls {
		if c.handle == h {
			d.calls = append(d.calls[:i], d.calls[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of calls not yet fired.
func (d *Deferrer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Next returns the time of the earliest pending call.
func (d *Deferrer) Next() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return time.Time{}, false
	}
	return d.calls[0].at, true
}

// AdvanceTo moves the clock to t, firing every call due at or before t in
// time order. The clock reads each call's time while it runs. Calls
// scheduled by callbacks fire in the same pass when they fall within t. The
// clock never moves backwards. It returns the number of calls fired.
func (d *Deferrer) AdvanceTo(ctx context.Context, t time.Time) int {
	t = t.UTC()
	fired := 0
	for {
		d.mu.Lock()
		if len(d.calls) == 0 || d.calls[0].at.After(t) {
			if t.After(d.now) {
				d.now = t
			}
			d.mu.Unlock()
			return fired
		}
		c := d.calls[0]
		d.calls = d.calls[1:]
		if c.at.After(d.now) {
			d.now = c.at
		}
		cb := d.cb
		d.mu.Unlock()

		if cb != nil {
			cb(ctx, c.handle, c.payload)
		}
		fired++
	}
}

// Advance moves the clock forward by dur. See AdvanceTo.
func (d *Deferrer) Advance(ctx context.Context, dur time.Duration) int {
	return d.AdvanceTo(ctx, d.Now().Add(dur))
}
