package booking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/slotbot/internal/browser"
)

// ErrNoControls means a slot was opened but no reserve control was found.
var ErrNoControls = errors.New("booking: no reserve controls")

// ReserveLayout names the reserve controls and, in checking order, the
// signals that prove a claim.
type ReserveLayout struct {
	Controls []Strategy
	Signals  []Strategy
}

const (
	defaultInstantTimeout = 300 * time.Millisecond
	defaultClickSpacing   = 50 * time.Millisecond
	defaultMaxParallel    = 8
)

// Reserver claims a slot. It first races a single click on the first reserve
// control, then falls back to clicking every control it can find.
type Reserver struct {
	Layout    ReserveLayout
	Extractor DetailsExtractor
	Log       zerolog.Logger

	InstantTimeout time.Duration
	ClickSpacing   time.Duration
	MaxParallel    int
}

func (r *Reserver) Attempt(ctx context.Context, sess browser.Session, slot browser.Element) (Outcome, error) {
	if err := slot.Click(ctx); err != nil {
		if fatal(ctx, err) {
			return Outcome{}, err
		}
		r.Log.Warn().Err(err).Msg("slot click failed")
		return Outcome{Kind: Failed}, nil
	}

	clicks, err := r.instant(ctx, sess)
	if err != nil {
		return Outcome{}, err
	}
	if clicks == 0 {
		clicks, err = r.fallback(ctx, sess)
		if errors.Is(err, ErrNoControls) {
			r.Log.Warn().Msg("no reserve controls on slot page")
			return Outcome{Kind: Failed}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
	}
	if clicks == 0 {
		r.Log.Warn().Msg("every reserve click failed")
		return Outcome{Kind: Failed}, nil
	}

	signal, ok, err := r.Verify(ctx, sess)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		r.Log.Warn().Int("clicks", clicks).Msg("reservation could not be verified")
		return Outcome{Kind: Unverifiable, Clicks: clicks}, nil
	}

	details := NewDetails()
	if r.Extractor != nil {
		details = r.Extractor.Extract(ctx, sess)
	}
	r.Log.Info().Str("signal", signal).Int("clicks", clicks).Str("centre", details.Centre).Msg("reservation confirmed")
	return Outcome{Kind: Confirmed, Details: details, Clicks: clicks, Signal: signal}, nil
}

// instant waits briefly for the first reserve control and clicks it. The
// click shares the wait's deadline; a slow click leaves it to the fallback.
func (r *Reserver) instant(ctx context.Context, sess browser.Session) (int, error) {
	if len(r.Layout.Controls) == 0 {
		return 0, nil
	}
	first := r.Layout.Controls[0].Selector
	if err := sess.WaitVisible(ctx, first, r.instantTimeout()); err != nil {
		if fatal(ctx, err) {
			return 0, err
		}
		return 0, nil
	}
	els, err := sess.Query(ctx, first)
	if err != nil || len(els) == 0 {
		if err != nil && fatal(ctx, err) {
			return 0, err
		}
		return 0, nil
	}
	cctx, cancel := context.WithTimeout(ctx, r.instantTimeout())
	defer cancel()
	if err := els[0].Click(cctx); err != nil {
		if fatal(ctx, err) {
			return 0, err
		}
		r.Log.Debug().Err(err).Msg("instant reserve click failed")
		return 0, nil
	}
	return 1, nil
}

// fallback clicks every reserve control concurrently, launching one click
// every ClickSpacing, and counts the successes.
func (r *Reserver) fallback(ctx context.Context, sess browser.Session) (int, error) {
	st, els, err := FirstMatch(ctx, sess, r.Layout.Controls)
	if err != nil {
		return 0, err
	}
	if len(els) == 0 {
		return 0, ErrNoControls
	}
	r.Log.Debug().Str("strategy", st.Name).Int("controls", len(els)).Msg("clicking all reserve controls")

	results := make([]bool, len(els))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel())
	var launchErr error
	for i, el := range els {
		if i > 0 {
			if launchErr = Sleep(ctx, r.clickSpacing()); launchErr != nil {
				break
			}
		}
		g.Go(func() error {
			if err := el.Click(gctx); err != nil {
				if errors.Is(err, browser.ErrSessionLost) {
					return err
				}
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if launchErr != nil {
		return 0, launchErr
	}

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n, nil
}

// Verify checks the confirmation signals in order and reports the first one
// present.
func (r *Reserver) Verify(ctx context.Context, sess browser.Session) (string, bool, error) {
	for _, sig := range r.Layout.Signals {
		n, err := sess.Count(ctx, sig.Selector)
		if err != nil {
			if fatal(ctx, err) {
				return "", false, err
			}
			continue
		}
		if n > 0 {
			return sig.Name, true, nil
		}
	}
	return "", false, nil
}

func (r *Reserver) instantTimeout() time.Duration {
	if r.InstantTimeout > 0 {
		return r.InstantTimeout
	}
	return defaultInstantTimeout
}

func (r *Reserver) clickSpacing() time.Duration {
	if r.ClickSpacing > 0 {
		return r.ClickSpacing
	}
	return defaultClickSpacing
}

func (r *Reserver) maxParallel() int {
	if r.MaxParallel > 0 {
		return r.MaxParallel
	}
	return defaultMaxParallel
}
