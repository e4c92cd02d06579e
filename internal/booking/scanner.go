package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/browser"
)

// Calendar names the calendar controls the scanner drives.
type Calendar struct {
	WeekHeader   browser.Selector
	PreviousWeek browser.Selector
	NextWeek     browser.Selector
	Slots        []Strategy
}

const (
	defaultMaxSkips   = 30
	defaultMaxRewinds = 20
	navClickTimeout   = 5 * time.Second
)

// Scanner pages through the calendar looking for an open slot inside Window.
type Scanner struct {
	Calendar Calendar
	Window   Window
	Pacer    Pacer
	Log      zerolog.Logger

	// MaxSkips bounds out-of-window page moves per scan, which do not count
	// as attempts.
	MaxSkips int
	// MaxRewinds bounds "previous week" clicks in one rewind.
	MaxRewinds int
}

// Scan polls the calendar for up to maxAttempts in-window weeks. It returns
// Found with the first open slot in document order, or Exhausted. Faults on a
// single attempt are logged and counted; session loss and cancellation are
// returned.
func (s *Scanner) Scan(ctx context.Context, sess browser.Session, maxAttempts int) (ScanResult, error) {
	attempts, skips := 0, 0
	for attempts < maxAttempts {
		res, err := s.pass(ctx, sess)
		if err != nil {
			if fatal(ctx, err) {
				return ScanResult{}, err
			}
			attempts++
			s.Log.Debug().Err(err).Int("attempt", attempts).Msg("scan attempt failed")
			if err := s.pause(ctx); err != nil {
				return ScanResult{}, err
			}
			continue
		}

		switch {
		case res.Kind == Found:
			res.Attempts = attempts + 1
			s.Log.Info().Int("attempt", res.Attempts).Str("week", res.Week).Msg("slot found")
			return res, nil
		case res.OutOfWindow:
			skips++
			if skips > s.maxSkips() {
				s.Log.Warn().Int("skips", skips).Msg("no in-window week reachable")
				return ScanResult{Kind: Exhausted, Attempts: attempts, Week: res.Week}, nil
			}
		default:
			attempts++
			s.Log.Debug().Int("attempt", attempts).Int("max", maxAttempts).Str("week", res.Week).Msg("no slots this week")
			if err := s.pause(ctx); err != nil {
				return ScanResult{}, err
			}
		}
	}
	return ScanResult{Kind: Exhausted, Attempts: attempts}, nil
}

// pass inspects the current week once and moves the calendar on.
func (s *Scanner) pass(ctx context.Context, sess browser.Session) (ScanResult, error) {
	header, err := sess.Text(ctx, s.Calendar.WeekHeader)
	if err != nil {
		return ScanResult{}, fmt.Errorf("read week header: %w", err)
	}
	header = strings.TrimSpace(header)

	switch pos := s.Window.Locate(header); pos {
	case Before:
		s.Log.Debug().Str("week", header).Msg("week before window, paging forward")
		if err := s.advance(ctx, sess); err != nil {
			return ScanResult{}, err
		}
		return ScanResult{Kind: NotFoundAdvance, Week: header, OutOfWindow: true}, nil
	case After:
		s.Log.Debug().Str("week", header).Msg("week after window, rewinding")
		if err := s.Rewind(ctx, sess); err != nil {
			return ScanResult{}, err
		}
		return ScanResult{Kind: NotFoundAdvance, Week: header, OutOfWindow: true}, nil
	}

	st, slots, err := FirstMatch(ctx, sess, s.Calendar.Slots)
	if err != nil {
		return ScanResult{}, err
	}
	if len(slots) > 0 {
		s.Log.Debug().Str("strategy", st.Name).Int("slots", len(slots)).Msg("open slots")
		return ScanResult{Kind: Found, Slot: slots[0], Week: header}, nil
	}
	if err := s.advance(ctx, sess); err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Kind: NotFoundAdvance, Week: header}, nil
}

func (s *Scanner) advance(ctx context.Context, sess browser.Session) error {
	if err := sess.Click(ctx, s.Calendar.NextWeek, navClickTimeout); err != nil {
		return err
	}
	return sess.WaitIdle(ctx)
}

// Rewind clicks "previous week" until the control disappears, returning the
// calendar to the current week.
func (s *Scanner) Rewind(ctx context.Context, sess browser.Session) error {
	for i := 0; i < s.maxRewinds(); i++ {
		n, err := sess.Count(ctx, s.Calendar.PreviousWeek)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := sess.Click(ctx, s.Calendar.PreviousWeek, navClickTimeout); err != nil {
			return err
		}
		if err := sess.WaitIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) pause(ctx context.Context) error {
	if s.Pacer == nil {
		return ctx.Err()
	}
	return s.Pacer.Pause(ctx, 800*time.Millisecond, 2*time.Second)
}

func (s *Scanner) maxSkips() int {
	if s.MaxSkips > 0 {
		return s.MaxSkips
	}
	return defaultMaxSkips
}

func (s *Scanner) maxRewinds() int {
	if s.MaxRewinds > 0 {
		return s.MaxRewinds
	}
	return defaultMaxRewinds
}
