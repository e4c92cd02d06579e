package booking

import (
	"context"
	"errors"

	"github.com/example/slotbot/internal/browser"
)

// Strategy is one named way of locating elements on a page.
type Strategy struct {
	Name     string
	Selector browser.Selector
}

// FirstMatch runs strategies in order and returns the elements of the first
// one that finds anything. A strategy whose lookup fails counts as empty,
// unless the failure is fatal to the session. No match is not an error.
func FirstMatch(ctx context.Context, s browser.Session, strategies []Strategy) (Strategy, []browser.Element, error) {
	for _, st := range strategies {
		els, err := s.Query(ctx, st.Selector)
		if err != nil {
			if fatal(ctx, err) {
				return Strategy{}, nil, err
			}
			continue
		}
		if len(els) > 0 {
			return st, els, nil
		}
	}
	return Strategy{}, nil, nil
}

// fatal reports errors the loop must not swallow.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil
}
