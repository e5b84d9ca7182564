package manual_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/subpay/scheduler"
	"github.com/xraph/subpay/scheduler/manual"
)

var t0 = time.Unix(1700000000, 0).UTC()

func TestAdvanceFiresInOrder(t *testing.T) {
	ctx := context.Background()
	d := manual.New(t0)

	var order []uint64
	var seen []time.Time
	d.Bind(func(_ context.Context, _ scheduler.Handle, p scheduler.Payload) {
		order = append(order, p.Version)
		seen = append(seen, d.Now())
	})

	_, _ = d.ScheduleAt(ctx, t0.Add(3*time.Hour), scheduler.Payload{Version: 3})
	_, _ = d.ScheduleAt(ctx, t0.Add(time.Hour), scheduler.Payload{Version: 1})
	_, _ = d.ScheduleAt(ctx, t0.Add(2*time.Hour), scheduler.Payload{Version: 2})

	if n := d.AdvanceTo(ctx, t0.Add(2*time.Hour)); n != 2 {
		t.Fatalf("expected 2 fired, got %d", n)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("unexpected order %v", order)
	}
	if !seen[0].Equal(t0.Add(time.Hour)) {
		t.Errorf("clock should read the call time while firing, got %v", seen[0])
	}
	if !d.Now().Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("unexpected clock %v", d.Now())
	}

	next, ok := d.Next()
	if !ok || !next.Equal(t0.Add(3*time.Hour)) {
		t.Errorf("unexpected next %v %v", next, ok)
	}
}

func TestCallbackScheduledWithinWindow(t *testing.T) {
	ctx := context.Background()
	d := manual.New(t0)

	fired := 0
	d.Bind(func(ctx context.Context, _ scheduler.Handle, p scheduler.Payload) {
		fired++
		if p.Version < 3 {
			_, _ = d.ScheduleAt(ctx, d.Now().Add(time.Hour), scheduler.Payload{Version: p.Version + 1})
		}
	})
	_, _ = d.ScheduleAt(ctx, t0.Add(time.Hour), scheduler.Payload{Version: 1})

	d.Advance(ctx, 24*time.Hour)
	if fired != 3 {
		t.Errorf("expected chained calls to fire, got %d", fired)
	}
	if d.Len() != 0 {
		t.Errorf("expected empty queue, got %d", d.Len())
	}
}

func TestCancelAndBackwards(t *testing.T) {
	ctx := context.Background()
	d := manual.New(t0)
	fired := 0
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) { fired++ })

	h, _ := d.ScheduleAt(ctx, t0.Add(time.Hour), scheduler.Payload{})
	if err := d.Cancel(ctx, h); err != nil {
		t.Fatal(err)
	}
	if err := d.Cancel(ctx, "call_unknown"); err != nil {
		t.Errorf("unknown handle should not error: %v", err)
	}

	d.AdvanceTo(ctx, t0.Add(2*time.Hour))
	if fired != 0 {
		t.Errorf("cancelled call fired")
	}

	d.AdvanceTo(ctx, t0)
	if !d.Now().Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("clock moved backwards to %v", d.Now())
	}
}
