package booking

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/browser"
)

// Orchestrator runs the booking loop: set up a batch of centres, scan,
// reserve, notify, and move on, pausing for Cooldown after every full pass.
// It returns only when MaxBookings is reached, no further searching is
// possible after a booking, or ctx is cancelled.
type Orchestrator struct {
	Centres          []string
	BatchSize        int
	AttemptsPerBatch int
	MaxBookings      int
	Cooldown         time.Duration

	Rotator   *Rotator
	Scanner   SlotScanner
	Reserver  SlotReserver
	Manager   CentreManager
	Navigator Navigator
	Notifier  Notifier
	Observer  Observer
	Pacer     Pacer
	Log       zerolog.Logger

	// Sleep waits during the cooldown; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Backoff paces repeated rotation failures.
	Backoff func() backoff.BackOff
}

func (o *Orchestrator) Run(ctx context.Context) (Counters, error) {
	c := Counters{MaxBookings: o.MaxBookings, Cycles: 1}
	defer o.Rotator.Close()

	if err := o.rotate(ctx, "start"); err != nil {
		return c, err
	}
	for {
		o.Log.Info().Int("cycle", c.Cycles).Int("bookings", c.BookingsMade).Msg("cycle started")
		done, err := o.cycle(ctx, &c)
		if err != nil {
			return c, err
		}
		if done {
			o.Log.Info().Int("bookings", c.BookingsMade).Int("cycles", c.Cycles).Msg("booking loop finished")
			return c, nil
		}
		o.observer().CycleCompleted(c.Cycles)
		if err := o.cooldown(ctx); err != nil {
			return c, err
		}
		c.Cycles++
	}
}

// cycle walks every batch once. It reports done when the loop must stop.
func (o *Orchestrator) cycle(ctx context.Context, c *Counters) (bool, error) {
	index := 0
	for start := 0; ; {
		batch, next, ok := NextBatch(o.Centres, start, o.BatchSize)
		if !ok {
			return false, nil
		}
		done, err := o.runBatch(ctx, c, index, batch)
		if errors.Is(err, browser.ErrSessionLost) && ctx.Err() == nil {
			o.Log.Warn().Err(err).Strs("batch", batch).Msg("session lost, rotating")
			if err := o.rotate(ctx, "session lost"); err != nil {
				return false, err
			}
			continue
		}
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		start = next
		index++
	}
}

func (o *Orchestrator) runBatch(ctx context.Context, c *Counters, index int, batch []string) (bool, error) {
	setup := true
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if o.Rotator.Due() {
			if err := o.rotate(ctx, "budget"); err != nil {
				return false, err
			}
			setup = true
		}
		sess := o.Rotator.Session()

		if setup {
			added, err := o.setup(ctx, sess, batch)
			if err != nil {
				return false, err
			}
			o.observer().BatchStarted(index, batch, added)
			if added == 0 {
				o.Log.Warn().Strs("batch", batch).Msg("no centres accepted, skipping batch")
				return false, nil
			}
			setup = false
		}

		res, err := o.Scanner.Scan(ctx, sess, o.AttemptsPerBatch)
		if err != nil {
			return false, err
		}
		o.observer().ScanFinished(res)
		if res.Kind != Found {
			o.Log.Info().Strs("batch", batch).Int("attempts", res.Attempts).Msg("batch exhausted")
			return false, nil
		}

		out, err := o.Reserver.Attempt(ctx, sess, res.Slot)
		if err != nil {
			return false, err
		}
		o.observer().Reserved(out)
		if out.Kind != Confirmed {
			o.Log.Warn().Stringer("outcome", out.Kind).Msg("reservation not confirmed, returning to calendar")
			if err := o.Navigator.ReturnToCalendar(ctx, sess); err != nil {
				if fatal(ctx, err) {
					return false, err
				}
				o.Log.Warn().Err(err).Msg("return to calendar")
			}
			return false, nil
		}

		c.BookingsMade++
		o.notify(ctx, out.Details)
		o.logSummary(c, out.Details)
		if c.BookingsMade >= c.MaxBookings {
			return true, nil
		}

		more, err := o.Navigator.ContinueSearching(ctx, sess)
		if err != nil {
			if fatal(ctx, err) {
				return false, err
			}
			o.Log.Warn().Err(err).Msg("continue searching")
		}
		if !more {
			o.Log.Info().Msg("portal offers no way to continue searching")
			return true, nil
		}
	}
}

// setup replaces the active centres with batch and reports how many the
// portal accepted.
func (o *Orchestrator) setup(ctx context.Context, sess browser.Session, batch []string) (int, error) {
	if err := o.Manager.Clear(ctx, sess); err != nil {
		if fatal(ctx, err) {
			return 0, err
		}
		o.Log.Warn().Err(err).Msg("clear centres")
	}
	added := 0
	for _, centre := range batch {
		ok, err := o.Manager.Add(ctx, sess, centre)
		if err != nil && fatal(ctx, err) {
			return 0, err
		}
		if !ok {
			o.Log.Warn().Err(err).Str("centre", centre).Msg("centre not added")
			continue
		}
		added++
		if o.Pacer != nil {
			if err := o.Pacer.Pause(ctx, time.Second, 2*time.Second); err != nil {
				return 0, err
			}
		}
	}
	o.Log.Info().Strs("batch", batch).Int("added", added).Msg("batch ready")
	return added, nil
}

func (o *Orchestrator) notify(ctx context.Context, d Details) {
	if o.Notifier == nil {
		return
	}
	if !o.Notifier.Notify(ctx, d.Fields(), d.URL) {
		o.Log.Warn().Msg("booking notification not delivered")
	}
}

func (o *Orchestrator) logSummary(c *Counters, d Details) {
	o.Log.Info().
		Int("booking", c.BookingsMade).
		Int("max", c.MaxBookings).
		Str("centre", d.Centre).
		Str("date", d.Date).
		Str("time", d.Time).
		Str("reference", d.Reference).
		Msg("booking made")
}

// cooldown waits out the pause between cycles a minute at a time, keeping
// the session within its budget.
func (o *Orchestrator) cooldown(ctx context.Context) error {
	o.Log.Info().Dur("cooldown", o.Cooldown).Msg("all batches searched, cooling down")
	sleep := o.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	for remaining := o.Cooldown; remaining > 0; {
		step := min(time.Minute, remaining)
		if err := sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
		if o.Rotator.Due() {
			if err := o.rotate(ctx, "budget"); err != nil {
				return err
			}
		}
	}
	return nil
}

// rotate replaces the session, retrying failed logins with backoff until it
// succeeds or ctx ends.
func (o *Orchestrator) rotate(ctx context.Context, reason string) error {
	op := func() error {
		err := o.Rotator.Rotate(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		o.Log.Warn().Err(err).Dur("retry_in", wait).Str("reason", reason).Msg("rotation failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(o.newBackoff(), ctx), notify); err != nil {
		return err
	}
	o.observer().Rotated(o.Rotator.State().Kind, reason)
	return nil
}

func (o *Orchestrator) newBackoff() backoff.BackOff {
	if o.Backoff != nil {
		return o.Backoff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 2 * time.Minute
	b.MaxElapsedTime = 0
	return b
}

func (o *Orchestrator) observer() Observer {
	if o.Observer == nil {
		return NopObserver{}
	}
	return o.Observer
}
