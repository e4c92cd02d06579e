package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/browser"
)

// Rewinder returns the calendar to the current week.
type Rewinder interface {
	Rewind(ctx context.Context, s browser.Session) error
}

// Navigator leaves the reservation views for the calendar.
type Navigator struct {
	Calendar Rewinder
	Log      zerolog.Logger
}

func (n *Navigator) ReturnToCalendar(ctx context.Context, s browser.Session) error {
	if err := s.Click(ctx, returnToSearch, 10*time.Second); err != nil {
		return fmt.Errorf("return to search results: %w", err)
	}
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	if n.Calendar == nil {
		return nil
	}
	return n.Calendar.Rewind(ctx, s)
}

// ContinueSearching dismisses the reserved-slot message ("add another test")
// or, failing that, goes back to the search results.
func (n *Navigator) ContinueSearching(ctx context.Context, s browser.Session) (bool, error) {
	for _, sel := range []browser.Selector{dismissReserved, returnToSearch} {
		count, err := s.Count(ctx, sel)
		if err != nil {
			return false, err
		}
		if count == 0 {
			continue
		}
		if err := s.Click(ctx, sel, 10*time.Second); err != nil {
			return false, err
		}
		if err := s.WaitIdle(ctx); err != nil {
			return false, err
		}
		n.Log.Info().Str("via", sel.String()).Msg("continuing search")
		return true, nil
	}
	return false, nil
}
