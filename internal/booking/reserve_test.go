package booking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/example/slotbot/internal/browser"
	"github.com/example/slotbot/internal/browser/browsertest"
)

var testReserveLayout = ReserveLayout{
	Controls: []Strategy{
		{Name: "table", Selector: browser.CSS("#slots a.reserve")},
		{Name: "text", Selector: browser.XPath("//a[contains(., 'Reserve')]")},
	},
	Signals: []Strategy{
		{Name: "countdown", Selector: browser.CSS("#minutesToTimeout")},
		{Name: "reserved_row", Selector: browser.CSS("a[id*='releaseReservedSlot_']")},
		{Name: "confirmation_text", Selector: browser.XPath("//*[contains(., 'reserved')]")},
	},
}

type stubExtractor struct {
	calls atomic.Int32
	d     Details
}

func (e *stubExtractor) Extract(context.Context, browser.Session) Details {
	e.calls.Add(1)
	return e.d
}

// page models a slot page: which selectors currently match, and how many
// elements each yields.
type page struct {
	counts  map[browser.Selector]func() []browser.Element
	waitErr error
}

func (p *page) session() *browsertest.Session {
	s := browsertest.New(browser.Edge)
	s.QueryFunc = func(sel browser.Selector) ([]browser.Element, error) {
		if f, ok := p.counts[sel]; ok {
			return f(), nil
		}
		return nil, nil
	}
	if p.waitErr != nil {
		s.WaitVisibleFunc = func(context.Context, browser.Selector, time.Duration) error { return p.waitErr }
	}
	return s
}

func newReserver(ex DetailsExtractor) *Reserver {
	return &Reserver{
		Layout:       testReserveLayout,
		Extractor:    ex,
		Log:          zerolog.Nop(),
		ClickSpacing: time.Millisecond,
	}
}

func TestAttemptInstantClickConfirmed(t *testing.T) {
	var claimed atomic.Bool
	reserve := &browsertest.Element{Label: "reserve", OnClick: func(context.Context) error {
		claimed.Store(true)
		return nil
	}}
	p := &page{counts: map[browser.Selector]func() []browser.Element{
		testReserveLayout.Controls[0].Selector: func() []browser.Element { return []browser.Element{reserve} },
		testReserveLayout.Signals[0].Selector: func() []browser.Element {
			if claimed.Load() {
				return browsertest.Elements("countdown", 1)
			}
			return nil
		},
	}}
	ex := &stubExtractor{d: Details{Centre: "Wood Green (London)", Date: "Tuesday 4 March 2025"}}
	slot := &browsertest.Element{Label: "slot"}

	out, err := newReserver(ex).Attempt(context.Background(), p.session(), slot)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, out.Kind)
	assert.Equal(t, 1, out.Clicks)
	assert.Equal(t, "countdown", out.Signal)
	assert.Equal(t, "Wood Green (London)", out.Details.Centre)
	assert.Equal(t, 1, slot.Clicks())
	assert.Equal(t, 1, reserve.Clicks())
}

func TestAttemptFallbackClicksEveryControl(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	controls := []*browsertest.Element{
		{Label: "a"},
		{Label: "b", OnClick: func(context.Context) error { return errors.New("element detached") }},
		{Label: "c"},
	}
	els := make([]browser.Element, len(controls))
	for i, c := range controls {
		els[i] = c
	}
	p := &page{
		waitErr: context.DeadlineExceeded,
		counts: map[browser.Selector]func() []browser.Element{
			testReserveLayout.Controls[1].Selector: func() []browser.Element { return els },
			testReserveLayout.Signals[1].Selector:  func() []browser.Element { return browsertest.Elements("row", 2) },
		},
	}

	out, err := newReserver(&stubExtractor{d: NewDetails()}).Attempt(context.Background(), p.session(), &browsertest.Element{})
	require.NoError(t, err)
	assert.Equal(t, Confirmed, out.Kind)
	assert.Equal(t, 2, out.Clicks)
	assert.Equal(t, "reserved_row", out.Signal)
	for _, c := range controls {
		assert.Equal(t, 1, c.Clicks(), "control %s", c.Label)
	}
}

func TestAttemptUnverifiedClaimIsNotConfirmed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := &page{
		waitErr: context.DeadlineExceeded,
		counts: map[browser.Selector]func() []browser.Element{
			testReserveLayout.Controls[1].Selector: func() []browser.Element { return browsertest.Elements("reserve", 3) },
		},
	}
	ex := &stubExtractor{}

	out, err := newReserver(ex).Attempt(context.Background(), p.session(), &browsertest.Element{})
	require.NoError(t, err)
	assert.Equal(t, Unverifiable, out.Kind)
	assert.Equal(t, 3, out.Clicks)
	assert.Zero(t, ex.calls.Load(), "details are only extracted for confirmed claims")
}

func TestAttemptWithoutControlsFails(t *testing.T) {
	p := &page{waitErr: context.DeadlineExceeded}
	out, err := newReserver(nil).Attempt(context.Background(), p.session(), &browsertest.Element{})
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
}

func TestAttemptAllClicksFailing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	broken := func(context.Context) error { return errors.New("click intercepted") }
	p := &page{
		waitErr: context.DeadlineExceeded,
		counts: map[browser.Selector]func() []browser.Element{
			testReserveLayout.Controls[0].Selector: func() []browser.Element {
				return []browser.Element{&browsertest.Element{OnClick: broken}, &browsertest.Element{OnClick: broken}}
			},
			testReserveLayout.Signals[0].Selector: func() []browser.Element { return browsertest.Elements("countdown", 1) },
		},
	}
	out, err := newReserver(nil).Attempt(context.Background(), p.session(), &browsertest.Element{})
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind, "a stale confirmation signal without a successful click is not a claim")
}

func TestAttemptSlotClickFailure(t *testing.T) {
	slot := &browsertest.Element{OnClick: func(context.Context) error { return errors.New("stale element") }}
	out, err := newReserver(nil).Attempt(context.Background(), (&page{}).session(), slot)
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
}

func TestAttemptSessionLostDuringFallback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	lost := func(context.Context) error { return fmt.Errorf("%w: target closed", browser.ErrSessionLost) }
	p := &page{
		waitErr: context.DeadlineExceeded,
		counts: map[browser.Selector]func() []browser.Element{
			testReserveLayout.Controls[0].Selector: func() []browser.Element {
				return []browser.Element{&browsertest.Element{OnClick: lost}, &browsertest.Element{}}
			},
		},
	}
	_, err := newReserver(nil).Attempt(context.Background(), p.session(), &browsertest.Element{})
	assert.ErrorIs(t, err, browser.ErrSessionLost)
}

func TestVerifyChecksSignalsInOrder(t *testing.T) {
	p := &page{counts: map[browser.Selector]func() []browser.Element{
		testReserveLayout.Signals[1].Selector: func() []browser.Element { return browsertest.Elements("row", 1) },
		testReserveLayout.Signals[2].Selector: func() []browser.Element { return browsertest.Elements("text", 1) },
	}}
	sig, ok, err := newReserver(nil).Verify(context.Background(), p.session())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "reserved_row", sig)
}

func TestAttemptSlowInstantClickFallsBack(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	reserve := &browsertest.Element{Label: "reserve", OnClick: func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	p := &page{counts: map[browser.Selector]func() []browser.Element{
		testReserveLayout.Controls[0].Selector: func() []browser.Element { return []browser.Element{reserve} },
		testReserveLayout.Signals[0].Selector:  func() []browser.Element { return browsertest.Elements("countdown", 1) },
	}}
	r := newReserver(&stubExtractor{d: NewDetails()})
	r.InstantTimeout = 20 * time.Millisecond

	start := time.Now()
	out, err := r.Attempt(context.Background(), p.session(), &browsertest.Element{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "instant click is bounded by the instant timeout")
	assert.Equal(t, Confirmed, out.Kind)
	assert.Equal(t, 1, out.Clicks, "only the fallback click landed")
	assert.Equal(t, 2, reserve.Clicks())
}
