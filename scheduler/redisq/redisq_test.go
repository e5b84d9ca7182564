package redisq_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/subpay/scheduler"
	"github.com/xraph/subpay/scheduler/redisq"
)

var t0 = time.Unix(1700000000, 0).UTC()

func newDeferrer(t *testing.T, now *time.Time) *redisq.Deferrer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return redisq.New(client,
		redisq.WithPrefix("test:deferred"),
		redisq.WithClock(func() time.Time { return *now }),
	)
}

func TestPollFiresDueCalls(t *testing.T) {
	ctx := context.Background()
	now := t0
	d := newDeferrer(t, &now)

	var fired []scheduler.Payload
	d.Bind(func(_ context.Context, _ scheduler.Handle, p scheduler.Payload) {
		fired = append(fired, p)
	})

	_, _ = d.ScheduleAt(ctx, t0.Add(time.Hour), scheduler.Payload{SubscriptionID: 1, Version: 1})
	_, _ = d.ScheduleAt(ctx, t0.Add(2*time.Hour), scheduler.Payload{SubscriptionID: 2, Version: 5})

	n, err := d.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("nothing is due yet, fired %d", n)
	}

	now = t0.Add(90 * time.Minute)
	if n, _ = d.Poll(ctx); n != 1 {
		t.Fatalf("expected 1 fired, got %d", n)
	}
	if fired[0].SubscriptionID != 1 || fired[0].Version != 1 {
		t.Errorf("unexpected payload %+v", fired[0])
	}

	// A fired call is claimed and never delivered twice.
	if n, _ = d.Poll(ctx); n != 0 {
		t.Errorf("expected no redelivery, got %d", n)
	}

	pending, err := d.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Errorf("expected 1 pending, got %d", pending)
	}
}

// failCommand rejects one Redis command by name.
type failCommand string

func (failCommand) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (f failCommand) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == string(f) {
			err := errors.New("connection reset")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failCommand) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPollLogsPayloadCleanupFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	var logs bytes.Buffer
	now := t0
	d := redisq.New(client,
		redisq.WithPrefix("test:deferred"),
		redisq.WithClock(func() time.Time { return now }),
		redisq.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	fired := 0
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) { fired++ })

	if _, err := d.ScheduleAt(ctx, t0.Add(time.Minute), scheduler.Payload{SubscriptionID: 4, Version: 1}); err != nil {
		t.Fatal(err)
	}
	client.AddHook(failCommand("hdel"))

	now = t0.Add(time.Hour)
	n, err := d.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || fired != 1 {
		t.Fatalf("claimed call must still fire, n=%d fired=%d", n, fired)
	}
	if !strings.Contains(logs.String(), "payload cleanup failed") {
		t.Errorf("expected a cleanup warning, got %q", logs.String())
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	now := t0
	d := newDeferrer(t, &now)

	fired := 0
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) { fired++ })

	h, err := d.ScheduleAt(ctx, t0.Add(time.Minute), scheduler.Payload{SubscriptionID: 9})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Cancel(ctx, h); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	now = t0.Add(time.Hour)
	if _, err := d.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if fired != 0 {
		t.Errorf("cancelled call fired %d times", fired)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	now := t0
	d := newDeferrer(t, &now)
	d.Bind(func(context.Context, scheduler.Handle, scheduler.Payload) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
