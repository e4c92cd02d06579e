package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/browser"
)

// SessionState is the current session and when it was opened.
type SessionState struct {
	Kind    browser.Kind
	Started time.Time
	Session browser.Session
}

// Rotator owns the single live session and replaces it once it has been
// open for Budget.
type Rotator struct {
	Auth   Authenticator
	Budget time.Duration
	Now    func() time.Time
	Log    zerolog.Logger

	state SessionState
}

func NewRotator(auth Authenticator, initial browser.Kind, budget time.Duration, log zerolog.Logger) *Rotator {
	return &Rotator{
		Auth:   auth,
		Budget: budget,
		Now:    time.Now,
		Log:    log,
		state:  SessionState{Kind: initial},
	}
}

func (r *Rotator) State() SessionState { return r.state }

func (r *Rotator) Session() browser.Session { return r.state.Session }

// ShouldRotate reports whether state has used up its budget.
func (r *Rotator) ShouldRotate(state SessionState) bool {
	return r.Now().Sub(state.Started) >= r.Budget
}

// Due reports whether the current session must be replaced, either because
// there is none or because its budget is spent.
func (r *Rotator) Due() bool {
	return r.state.Session == nil || r.ShouldRotate(r.state)
}

// Rotate closes the live session, if any, and logs in with the other browser.
// With no live session (first start, or a failed login) it logs in with the
// current kind. Close errors are logged and otherwise ignored.
func (r *Rotator) Rotate(ctx context.Context) error {
	kind := r.state.Kind
	if r.state.Session != nil {
		if err := r.state.Session.Close(); err != nil {
			r.Log.Warn().Err(err).Str("browser", string(kind)).Msg("close session")
		}
		kind = kind.Next()
	}
	r.state = SessionState{Kind: kind}

	sess, err := r.Auth.Login(ctx, kind)
	if err != nil {
		return fmt.Errorf("login with %s: %w", kind, err)
	}
	r.state = SessionState{Kind: kind, Started: r.Now(), Session: sess}
	r.Log.Info().Str("browser", string(kind)).Msg("session started")
	return nil
}

// Close shuts the current session down.
func (r *Rotator) Close() {
	if r.state.Session == nil {
		return
	}
	if err := r.state.Session.Close(); err != nil {
		r.Log.Warn().Err(err).Msg("close session")
	}
	r.state.Session = nil
}
