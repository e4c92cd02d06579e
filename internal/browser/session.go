// Package browser defines the capability surface the booking loop needs from
// a browser-automation session, and a chromedp implementation of it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSessionLost reports a session-level fault: the browser process or its
// debugging connection is gone. Callers must replace the session.
var ErrSessionLost = errors.New("browser: session lost")

// Kind is the browser engine backing a session.
type Kind string

const (
	Chrome Kind = "chrome"
	Edge   Kind = "edge"
)

// Next returns the engine the rotator switches to.
func (k Kind) Next() Kind {
	if k == Chrome {
		return Edge
	}
	return Chrome
}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Chrome, Edge:
		return Kind(s), nil
	}
	return "", fmt.Errorf("browser: unknown kind %q", s)
}

// By selects how a Selector's query is interpreted.
type By int

const (
	ByCSS By = iota
	ByXPath
)

type Selector struct {
	Query string
	By    By
}

func CSS(q string) Selector   { return Selector{Query: q, By: ByCSS} }
func XPath(q string) Selector { return Selector{Query: q, By: ByXPath} }

func (s Selector) String() string { return s.Query }

// Element is a handle to a node discovered by Session.Query.
type Element interface {
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}

// Session is one authenticated browser tab. It is owned by a single control
// flow; only Element.Click may be called concurrently on distinct elements.
type Session interface {
	Kind() Kind

	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Query returns every element matching sel in document order. It does
	// not wait; an empty result is not an error.
	Query(ctx context.Context, sel Selector) ([]Element, error)
	Count(ctx context.Context, sel Selector) (int, error)
	Text(ctx context.Context, sel Selector) (string, error)
	Value(ctx context.Context, sel Selector) (string, error)

	SetValue(ctx context.Context, sel Selector, value string) error
	SelectOption(ctx context.Context, sel Selector, label string) error
	SendKeys(ctx context.Context, sel Selector, keys string) error
	Click(ctx context.Context, sel Selector, timeout time.Duration) error

	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error
	WaitIdle(ctx context.Context) error

	Close() error
}

// Cookie is the persisted form of a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
}

// CookieSession is implemented by sessions whose cookies can be exported and
// restored.
type CookieSession interface {
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
}
