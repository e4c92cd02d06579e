package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
)

// Launcher starts a browser of the given kind.
type Launcher interface {
	Launch(ctx context.Context, kind browser.Kind) (browser.Session, error)
}

// CookieJar saves and restores session cookies between browsers.
type CookieJar interface {
	Save(ctx context.Context, s browser.CookieSession) error
	Restore(ctx context.Context, s browser.CookieSession) (int, error)
}

// Credentials for the Government Gateway login.
type Credentials struct {
	UserID   string
	Password string
}

// Authenticator logs in through GOV.UK and leaves the session on the slot
// search results for FirstCentre.
type Authenticator struct {
	Launcher     Launcher
	Cookies      CookieJar // optional
	Credentials  Credentials
	StartURL     string
	BookingURL   string
	TestCategory string
	FirstCentre  string
	Pacer        booking.Pacer
	Log          zerolog.Logger
}

var errNoSearchForm = errors.New("portal: slot search form not found")

func (a *Authenticator) Login(ctx context.Context, kind browser.Kind) (browser.Session, error) {
	s, err := a.Launcher.Launch(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := a.login(ctx, s); err != nil {
		if cerr := s.Close(); cerr != nil {
			a.Log.Warn().Err(cerr).Msg("close after failed login")
		}
		return nil, err
	}
	return s, nil
}

func (a *Authenticator) login(ctx context.Context, s browser.Session) error {
	log := a.Log.With().Str("browser", string(s.Kind())).Logger()
	cs, canCookie := s.(browser.CookieSession)
	if a.Cookies != nil && canCookie {
		if n, err := a.Cookies.Restore(ctx, cs); err != nil {
			log.Warn().Err(err).Msg("restore cookies")
		} else if n > 0 {
			log.Debug().Int("cookies", n).Msg("cookies restored")
		}
	}

	if err := s.Navigate(ctx, a.StartURL); err != nil {
		return fmt.Errorf("open start page: %w", err)
	}
	if err := a.pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}
	if err := s.Click(ctx, startButton, 15*time.Second); err != nil {
		return fmt.Errorf("start now: %w", err)
	}
	if err := s.WaitVisible(ctx, userIDInput, 20*time.Second); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := a.fill(ctx, s, userIDInput, a.Credentials.UserID); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	if err := a.fill(ctx, s, passwordInput, a.Credentials.Password); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	if err := s.Click(ctx, loginSubmit, 10*time.Second); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	if err := a.pause(ctx, 5*time.Second, 8*time.Second); err != nil {
		return err
	}
	if u, err := s.URL(ctx); err == nil {
		log.Debug().Str("url", u).Msg("signed in")
	}

	if err := s.Navigate(ctx, a.BookingURL); err != nil {
		return fmt.Errorf("open booking page: %w", err)
	}
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	if err := a.staySignedIn(ctx, s); err != nil {
		return err
	}
	if err := s.WaitVisible(ctx, searchForm, 20*time.Second); err != nil {
		if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", errNoSearchForm, err)
	}
	if err := a.searchFirstCentre(ctx, s); err != nil {
		return fmt.Errorf("initial search: %w", err)
	}

	if a.Cookies != nil && canCookie {
		if err := a.Cookies.Save(ctx, cs); err != nil {
			log.Warn().Err(err).Msg("save cookies")
		}
	}
	log.Info().Msg("logged in, on slot search results")
	return nil
}

// fill types value one key at a time unless the browser profile already
// filled the field.
func (a *Authenticator) fill(ctx context.Context, s browser.Session, sel browser.Selector, value string) error {
	current, err := s.Value(ctx, sel)
	if err != nil {
		return err
	}
	if strings.TrimSpace(current) != "" {
		a.Log.Debug().Str("field", sel.String()).Msg("field prefilled")
		return nil
	}
	if err := s.SetValue(ctx, sel, ""); err != nil {
		return err
	}
	for _, r := range value {
		if err := s.SendKeys(ctx, sel, string(r)); err != nil {
			return err
		}
		if err := a.pause(ctx, 120*time.Millisecond, 280*time.Millisecond); err != nil {
			return err
		}
	}
	return a.pause(ctx, time.Second, 2*time.Second)
}

// staySignedIn answers the "You are already signed in" interstitial.
func (a *Authenticator) staySignedIn(ctx context.Context, s browser.Session) error {
	n, err := s.Count(ctx, signedInNotice)
	if err != nil || n == 0 {
		return err
	}
	a.Log.Info().Msg("already signed in, staying")
	if err := s.Click(ctx, staySignedIn, 10*time.Second); err != nil {
		return err
	}
	if err := s.Click(ctx, continueButton, 10*time.Second); err != nil {
		return err
	}
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	return a.pause(ctx, 2*time.Second, 3*time.Second)
}

// searchFirstCentre submits the slot search form: car test, the first
// configured centre, no instructor, no special needs.
func (a *Authenticator) searchFirstCentre(ctx context.Context, s browser.Session) error {
	steps := []func() error{
		func() error { return s.SetValue(ctx, categorySelect, a.TestCategory) },
		func() error {
			if err := s.SelectOption(ctx, favCentres, a.FirstCentre); err != nil {
				if errors.Is(err, browser.ErrSessionLost) || ctx.Err() != nil {
					return err
				}
				a.Log.Warn().Err(err).Str("centre", a.FirstCentre).Msg("first centre not in favourites")
			}
			return nil
		},
		func() error { return s.SetValue(ctx, instructor, noInstructor) },
		func() error { return s.Click(ctx, noSpecialNeeds, 10*time.Second) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
		if err := a.pause(ctx, time.Second, 2*time.Second); err != nil {
			return err
		}
	}
	if err := s.Click(ctx, submitSearch, 10*time.Second); err != nil {
		return err
	}
	return s.WaitIdle(ctx)
}

func (a *Authenticator) pause(ctx context.Context, lo, hi time.Duration) error {
	if a.Pacer == nil {
		return ctx.Err()
	}
	return a.Pacer.Pause(ctx, lo, hi)
}
