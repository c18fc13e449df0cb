package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"jobtrack/internal/metrics"
)

// Epochs maintains the shared cache-generation counter: a single named slot
// with no expiry, observed by every replica. Bumping it invalidates all list
// pages cached under the previous value; per-id deletes remain the precise
// second layer of invalidation.
type Epochs struct {
	client Client
	key    string
	log    *slog.Logger
}

func NewEpochs(client Client, key string, log *slog.Logger) *Epochs {
	return &Epochs{client: client, key: key, log: log}
}

// Current returns the epoch, lazily initializing the slot to 1 on first use.
// Any cache failure degrades to 1 so reads behave as if the cache were cold
// rather than erroring.
func (e *Epochs) Current(ctx context.Context) int64 {
	raw, err := e.client.Get(ctx, e.key)
	if errors.Is(err, ErrMiss) {
		if err := e.client.Set(ctx, e.key, []byte("1"), 0); err != nil {
			e.log.Warn("epoch init failed", "err", err)
		}
		return 1
	}
	if err != nil {
		e.log.Warn("epoch read failed", "err", err)
		return 1
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || n < 1 {
		e.log.Warn("epoch slot holds invalid value", "value", string(raw))
		return 1
	}
	return n
}

// Advance atomically increments the epoch. Best effort: a failed increment
// only lets stale entries live out their TTL, it is never surfaced.
func (e *Epochs) Advance(ctx context.Context) {
	if _, err := e.client.Incr(ctx, e.key); err != nil {
		e.log.Warn("epoch advance failed", "err", err)
		return
	}
	metrics.RecordEpochBump()
}
