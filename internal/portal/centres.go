package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
)

const maxCentreRemovals = 10

// Centres adds and removes test centres on the slot search page.
type Centres struct {
	Pacer booking.Pacer
	Log   zerolog.Logger
}

// Clear removes every active centre. Each removal reloads the page, so the
// first remove link is looked up afresh every time.
func (c *Centres) Clear(ctx context.Context, s browser.Session) error {
	for i := 0; i < maxCentreRemovals; i++ {
		n, err := s.Count(ctx, removeCentre)
		if err != nil {
			return err
		}
		if n == 0 {
			if i > 0 {
				c.Log.Debug().Int("removed", i).Msg("centres cleared")
			}
			return nil
		}
		if err := s.Click(ctx, removeCentre, 10*time.Second); err != nil {
			return fmt.Errorf("remove centre: %w", err)
		}
		if err := s.WaitIdle(ctx); err != nil {
			return err
		}
		if err := c.pause(ctx, time.Second, 2*time.Second); err != nil {
			return err
		}
	}
	return fmt.Errorf("centres still listed after %d removals", maxCentreRemovals)
}

// Add enters centre in the autocomplete, submits it and confirms the page now
// lists it.
func (c *Centres) Add(ctx context.Context, s browser.Session, centre string) (bool, error) {
	if err := s.SetValue(ctx, centreInput, ""); err != nil {
		return false, err
	}
	if err := s.SendKeys(ctx, centreInput, centre); err != nil {
		return false, err
	}
	if err := c.pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return false, err
	}
	if err := s.SelectOption(ctx, centreSelect, centre); err != nil {
		c.Log.Debug().Err(err).Str("centre", centre).Msg("direct selection failed, accepting autocomplete")
		if err := s.SendKeys(ctx, centreInput, kb.Tab); err != nil {
			return false, err
		}
	}
	if err := s.Click(ctx, addCentre, 10*time.Second); err != nil {
		return false, fmt.Errorf("submit centre: %w", err)
	}
	if err := s.WaitIdle(ctx); err != nil {
		return false, err
	}
	if err := c.pause(ctx, 2*time.Second, 3*time.Second); err != nil {
		return false, err
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return false, err
	}
	ok, err := Lists(html, centre)
	if err != nil {
		return false, err
	}
	if ok {
		c.Log.Info().Str("centre", centre).Msg("centre added")
	}
	return ok, nil
}

// Lists reports whether the page shows centre outside of form controls.
// Dropdowns carry every centre name, so they are ignored.
func Lists(html, centre string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse page: %w", err)
	}
	doc.Find("select, option, script, style, datalist").Remove()
	return strings.Contains(doc.Find("body").Text(), centre), nil
}

func (c *Centres) pause(ctx context.Context, lo, hi time.Duration) error {
	if c.Pacer == nil {
		return ctx.Err()
	}
	return c.Pacer.Pause(ctx, lo, hi)
}
