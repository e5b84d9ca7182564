// Package redisq provides a Redis-backed Deferrer. Calls are stored in a
// sorted set scored by due time, with payloads in a companion hash, so
// pending charges survive restarts and can be polled by several workers.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/scheduler"
)

// DefaultPrefix namespaces the queue keys.
const DefaultPrefix = "subpay:deferred"

// Option configures a Deferrer.
type Option func(*Deferrer)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(d *Deferrer) { d.prefix = prefix }
}

// WithClock sets the clock Poll compares due times against.
func WithClock(now func() time.Time) Option {
	return func(d *Deferrer) { d.now = now }
}

// WithBatchSize limits how many due calls one Poll claims.
func WithBatchSize(n int64) Option {
	return func(d *Deferrer) { d.batch = n }
}

// WithInterval sets the Run poll interval.
func WithInterval(interval time.Duration) Option {
	return func(d *Deferrer) { d.interval = interval }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deferrer) { d.logger = l }
}

// Deferrer is safe for concurrent use, including from several processes
// sharing one Redis.
type Deferrer struct {
	client   redis.UniversalClient
	prefix   string
	now      func() time.Time
	batch    int64
	interval time.Duration
	logger   *slog.Logger
	cb       scheduler.Callback
}

var _ scheduler.Deferrer = (*Deferrer)(nil)

// New returns a Deferrer using client.
func New(client redis.UniversalClient, opts ...Option) *Deferrer {
	d := &Deferrer{
		client:   client,
		prefix:   DefaultPrefix,
		now:      time.Now,
		batch:    100,
		interval: time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deferrer) dueKey() string     { return d.prefix + ":due" }
func (d *Deferrer) payloadKey() string { return d.prefix + ":payloads" }

// Bind implements scheduler.Deferrer.
func (d *Deferrer) Bind(cb scheduler.Callback) { d.cb = cb }

// ScheduleAt implements scheduler.Deferrer.
func (d *Deferrer) ScheduleAt(ctx context.Context, at time.Time, p scheduler.Payload) (scheduler.Handle, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("redisq: encode payload: %w", err)
	}
	h := id.NewCallID().String()

	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, d.payloadKey(), h, data)
	pipe.ZAdd(ctx, d.dueKey(), redis.Z{Score: float64(at.UnixMilli()), Member: h})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redisq: schedule: %w", err)
	}
	return scheduler.Handle(h), nil
}

// Cancel implements scheduler.Deferrer.
func (d *Deferrer) Cancel(ctx context.Context, h scheduler.Handle) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, d.dueKey(), string(h))
	pipe.HDel(ctx, d.payloadKey(), string(h))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisq: cancel: %w", err)
	}
	return nil
}

// Len returns the number of calls not yet fired.
func (d *Deferrer) Len(ctx context.Context) (int64, error) {
	n, err := d.client.ZCard(ctx, d.dueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redisq: len: %w", err)
	}
	return n, nil
}

// Poll claims and fires calls that are due. A call is claimed by removing
// it from the sorted set; a worker that loses the race skips it. It returns
// the number of calls fired.
func (d *Deferrer) Poll(ctx context.Context) (int, error) {
	upper := strconv.FormatInt(d.now().UnixMilli(), 10)
	members, err := d.client.ZRangeByScore(ctx, d.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   upper,
		Count: d.batch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redisq: poll: %w", err)
	}

	fired := 0
	for _, m := range members {
		claimed, err := d.client.ZRem(ctx, d.dueKey(), m).Result()
		if err != nil {
			return fired, fmt.Errorf("redisq: claim: %w", err)
		}
		if claimed == 0 {
			continue
		}

		raw, err := d.client.HGet(ctx, d.payloadKey(), m).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fired, fmt.Errorf("redisq: load payload: %w", err)
		}
		if err := d.client.HDel(ctx, d.payloadKey(), m).Err(); err != nil {
			d.logger.Warn("redisq: payload cleanup failed", "handle", m, "error", err)
		}

		var p scheduler.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			d.logger.Warn("redisq: dropping undecodable payload", "handle", m, "error", err)
			continue
		}
		if d.cb != nil {
			d.cb(ctx, scheduler.Handle(m), p)
		}
		fired++
	}
	return fired, nil
}

// Run polls until ctx is done.
func (d *Deferrer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.Poll(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("redisq: poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
