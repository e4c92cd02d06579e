package booking

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer inserts pauses between UI actions.
type Pacer interface {
	Pause(ctx context.Context, lo, hi time.Duration) error
}

// HumanPacer sleeps a uniformly random duration in [lo, hi).
type HumanPacer struct{}

func (HumanPacer) Pause(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += rand.N(hi - lo)
	}
	return Sleep(ctx, d)
}

// NoPace never waits.
type NoPace struct{}

func (NoPace) Pause(ctx context.Context, _, _ time.Duration) error { return ctx.Err() }

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
