package timer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/subpay/scheduler"
	"github.com/xraph/subpay/scheduler/timer"
)

func TestFires(t *testing.T) {
	d := timer.New()
	got := make(chan scheduler.Payload, 1)
	d.Bind(func(_ context.Context, _ scheduler.Handle, p scheduler.Payload) { got <- p })

	if _, err := d.ScheduleAt(context.Background(), time.Now().Add(10*time.Millisecond), scheduler.Payload{SubscriptionID: 4, Version: 2}); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p.SubscriptionID != 4 || p.Version != 2 {
			t.Errorf("unexpected payload %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	if d.Len() != 0 {
		t.Errorf("fired timer should be released, got %d", d.Len())
	}
}

func TestPastTimeFiresImmediately(t *testing.T) {
	d := timer.New()
	got := make(chan struct{}, 1)
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) { got <- struct{}{} })

	_, _ = d.ScheduleAt(context.Background(), time.Now().Add(-time.Hour), scheduler.Payload{})
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("past-due call did not fire")
	}
}

func TestCancel(t *testing.T) {
	d := timer.New()
	got := make(chan struct{}, 1)
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) { got <- struct{}{} })

	h, _ := d.ScheduleAt(context.Background(), time.Now().Add(50*time.Millisecond), scheduler.Payload{})
	if err := d.Cancel(context.Background(), h); err != nil {
		t.Fatal(err)
	}

	select {
	case <-got:
		t.Fatal("cancelled timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestClose(t *testing.T) {
	d := timer.New()
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) {})
	_, _ = d.ScheduleAt(context.Background(), time.Now().Add(time.Hour), scheduler.Payload{})
	d.Close()

	if d.Len() != 0 {
		t.Errorf("expected no timers after Close, got %d", d.Len())
	}
	if _, err := d.ScheduleAt(context.Background(), time.Now(), scheduler.Payload{}); !errors.Is(err, timer.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
