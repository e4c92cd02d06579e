// Package browsertest provides a scriptable in-memory browser.Session.
package browsertest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/example/slotbot/internal/browser"
)

var ErrNotFound = errors.New("browsertest: no such element")

// Session is a fake browser.Session. Static page content lives in the maps;
// the *Func hooks, when set, take precedence and let tests model pages that
// change as controls are clicked. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	KindValue browser.Kind
	PageURL   string
	PageHTML  string

	Elements map[string][]browser.Element
	Texts    map[string]string
	Values   map[string]string

	QueryFunc       func(sel browser.Selector) ([]browser.Element, error)
	TextFunc        func(sel browser.Selector) (string, error)
	ClickFunc       func(sel browser.Selector) error
	WaitVisibleFunc func(ctx context.Context, sel browser.Selector, timeout time.Duration) error
	HTMLFunc        func() (string, error)

	// Err, when set, is returned from every call.
	Err error
	// CloseErr is returned from Close.
	CloseErr error

	Navigated []string
	Clicked   []string
	Keys      map[string]string
	Selected  map[string]string
	Jar       []browser.Cookie
	Closed    int
}

func New(kind browser.Kind) *Session {
	return &Session{
		KindValue: kind,
		Elements:  map[string][]browser.Element{},
		Texts:     map[string]string{},
		Values:    map[string]string{},
		Keys:      map[string]string{},
		Selected:  map[string]string{},
	}
}

func (s *Session) Kind() browser.Kind { return s.KindValue }

func (s *Session) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}

// SetErr makes every later call fail with err.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigated = append(s.Navigated, url)
	s.PageURL = url
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	if err := s.fail(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageURL, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := s.fail(ctx); err != nil {
		return "", err
	}
	if s.HTMLFunc != nil {
		return s.HTMLFunc()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PageHTML, nil
}

func (s *Session) Query(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	if s.QueryFunc != nil {
		return s.QueryFunc(sel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Element(nil), s.Elements[sel.Query]...), nil
}

func (s *Session) Count(ctx context.Context, sel browser.Selector) (int, error) {
	els, err := s.Query(ctx, sel)
	return len(els), err
}

func (s *Session) Text(ctx context.Context, sel browser.Selector) (string, error) {
	if err := s.fail(ctx); err != nil {
		return "", err
	}
	if s.TextFunc != nil {
		return s.TextFunc(sel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Texts[sel.Query]
	if !ok {
		return "", ErrNotFound
	}
	return t, nil
}

func (s *Session) Value(ctx context.Context, sel browser.Selector) (string, error) {
	if err := s.fail(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Values[sel.Query], nil
}

func (s *Session) SetValue(ctx context.Context, sel browser.Selector, value string) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Values[sel.Query] = value
	return nil
}

func (s *Session) SelectOption(ctx context.Context, sel browser.Selector, label string) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Selected[sel.Query] = label
	return nil
}

func (s *Session) SendKeys(ctx context.Context, sel browser.Selector, keys string) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Keys[sel.Query] += keys
	return nil
}

func (s *Session) Click(ctx context.Context, sel browser.Selector, _ time.Duration) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.Clicked = append(s.Clicked, sel.Query)
	fn := s.ClickFunc
	s.mu.Unlock()
	if fn != nil {
		return fn(sel)
	}
	return nil
}

func (s *Session) WaitVisible(ctx context.Context, sel browser.Selector, timeout time.Duration) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	if s.WaitVisibleFunc != nil {
		return s.WaitVisibleFunc(ctx, sel, timeout)
	}
	n, err := s.Count(ctx, sel)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Session) WaitIdle(ctx context.Context) error { return s.fail(ctx) }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
	return s.CloseErr
}

func (s *Session) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Cookie(nil), s.Jar...), nil
}

func (s *Session) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Jar = append(s.Jar, cookies...)
	return nil
}

// ClickedCount reports how many times a selector was clicked via Click.
func (s *Session) ClickedCount(query string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.Clicked {
		if q == query {
			n++
		}
	}
	return n
}

// Element is a fake browser.Element.
type Element struct {
	Label   string
	Content string
	OnClick func(ctx context.Context) error

	mu     sync.Mutex
	clicks int
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.clicks++
	e.mu.Unlock()
	if e.OnClick != nil {
		return e.OnClick(ctx)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Content, nil
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Elements builds n fake elements labelled prefix0..prefixN-1.
func Elements(prefix string, n int) []browser.Element {
	out := make([]browser.Element, n)
	for i := range out {
		out[i] = &Element{Label: prefix + strconv.Itoa(i)}
	}
	return out
}
