package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
	"github.com/example/slotbot/internal/browser/browsertest"
)

type fakeLauncher struct {
	sessions []*browsertest.Session
	prepare  func(*browsertest.Session)
}

func (l *fakeLauncher) Launch(_ context.Context, kind browser.Kind) (browser.Session, error) {
	s := browsertest.New(kind)
	s.Elements[userIDInput.Query] = browsertest.Elements("user", 1)
	s.Elements[searchForm.Query] = browsertest.Elements("form", 1)
	if l.prepare != nil {
		l.prepare(s)
	}
	l.sessions = append(l.sessions, s)
	return s, nil
}

type memoryJar struct {
	saved    []browser.Cookie
	restored int
}

func (j *memoryJar) Save(ctx context.Context, s browser.CookieSession) error {
	c, err := s.Cookies(ctx)
	j.saved = c
	return err
}

func (j *memoryJar) Restore(ctx context.Context, s browser.CookieSession) (int, error) {
	j.restored++
	return len(j.saved), s.SetCookies(ctx, j.saved)
}

func newAuth(l Launcher, jar CookieJar) *Authenticator {
	return &Authenticator{
		Launcher:     l,
		Cookies:      jar,
		Credentials:  Credentials{UserID: "12345678", Password: "pw!"},
		StartURL:     "https://start.test",
		BookingURL:   "https://booking.test/home",
		TestCategory: "TC-B",
		FirstCentre:  "Wood Green (London)",
		Pacer:        booking.NoPace{},
		Log:          zerolog.Nop(),
	}
}

func TestLoginFillsFormAndSearches(t *testing.T) {
	l := &fakeLauncher{prepare: func(s *browsertest.Session) {
		s.Jar = []browser.Cookie{{Name: "JSESSIONID", Value: "x"}}
	}}
	jar := &memoryJar{}
	sess, err := newAuth(l, jar).Login(context.Background(), browser.Chrome)
	require.NoError(t, err)
	s := l.sessions[0]
	assert.Same(t, s, sess)

	assert.Equal(t, []string{"https://start.test", "https://booking.test/home"}, s.Navigated)
	assert.Equal(t, "12345678", s.Keys[userIDInput.Query])
	assert.Equal(t, "pw!", s.Keys[passwordInput.Query])
	assert.Equal(t, "TC-B", s.Values[categorySelect.Query])
	assert.Equal(t, "-1", s.Values[instructor.Query])
	assert.Equal(t, "Wood Green (London)", s.Selected[favCentres.Query])
	assert.Equal(t, 1, s.ClickedCount(submitSearch.Query))
	assert.Zero(t, s.ClickedCount(staySignedIn.Query))
	assert.Equal(t, 1, jar.restored)
	assert.Len(t, jar.saved, 1)
	assert.Zero(t, s.Closed)
}

func TestLoginSkipsPrefilledFields(t *testing.T) {
	l := &fakeLauncher{prepare: func(s *browsertest.Session) {
		s.Values[userIDInput.Query] = "12345678"
	}}
	_, err := newAuth(l, nil).Login(context.Background(), browser.Edge)
	require.NoError(t, err)
	s := l.sessions[0]
	assert.Empty(t, s.Keys[userIDInput.Query])
	assert.Equal(t, "pw!", s.Keys[passwordInput.Query])
}

func TestLoginStaysSignedIn(t *testing.T) {
	l := &fakeLauncher{prepare: func(s *browsertest.Session) {
		s.Elements[signedInNotice.Query] = browsertest.Elements("h1", 1)
	}}
	_, err := newAuth(l, nil).Login(context.Background(), browser.Edge)
	require.NoError(t, err)
	s := l.sessions[0]
	assert.Equal(t, 1, s.ClickedCount(staySignedIn.Query))
	assert.Equal(t, 1, s.ClickedCount(continueButton.Query))
}

func TestLoginFailureClosesBrowser(t *testing.T) {
	l := &fakeLauncher{prepare: func(s *browsertest.Session) {
		delete(s.Elements, searchForm.Query)
	}}
	_, err := newAuth(l, nil).Login(context.Background(), browser.Chrome)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNoSearchForm))
	assert.Equal(t, 1, l.sessions[0].Closed)
}

type countingRewinder struct{ calls int }

func (r *countingRewinder) Rewind(context.Context, browser.Session) error {
	r.calls++
	return nil
}

func TestNavigator(t *testing.T) {
	ctx := context.Background()
	rw := &countingRewinder{}
	n := &Navigator{Calendar: rw, Log: zerolog.Nop()}

	s := browsertest.New(browser.Chrome)
	require.NoError(t, n.ReturnToCalendar(ctx, s))
	assert.Equal(t, 1, s.ClickedCount(returnToSearch.Query))
	assert.Equal(t, 1, rw.calls)

	more, err := n.ContinueSearching(ctx, s)
	require.NoError(t, err)
	assert.False(t, more, "nothing to click")

	s.Elements[returnToSearch.Query] = browsertest.Elements("back", 1)
	more, err = n.ContinueSearching(ctx, s)
	require.NoError(t, err)
	assert.True(t, more)

	s.Elements[dismissReserved.Query] = browsertest.Elements("another", 1)
	more, err = n.ContinueSearching(ctx, s)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, 1, s.ClickedCount(dismissReserved.Query), "add-another is preferred")
}
