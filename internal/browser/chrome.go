package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const (
	defaultOpTimeout   = 20 * time.Second
	defaultLoadTimeout = 45 * time.Second
	closeTimeout       = 10 * time.Second
	navGrace           = 2 * time.Second
)

// Profile locates a browser binary and its user-data directory.
type Profile struct {
	ExecPath    string
	UserDataDir string
}

// Launcher starts chromium-family browsers through chromedp. Edge is driven
// over the same DevTools protocol as Chrome.
type Launcher struct {
	Profiles map[Kind]Profile
	Headless bool
	Log      zerolog.Logger
}

func (l *Launcher) Launch(ctx context.Context, kind Kind) (Session, error) {
	p := l.Profiles[kind]
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if p.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.ExecPath))
	}
	if p.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(p.UserDataDir))
	}

	// The browser must outlive ctx: it is closed by Session.Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	log := l.Log.With().Str("browser", string(kind)).Logger()
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	}))

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()
	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("launch %s: %w", kind, err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	life := newLifecycle()
	mainFrame := cdp.FrameID(chromedp.FromContext(tab).Target.TargetID)
	chromedp.ListenTarget(tab, life.listen(mainFrame))
	if err := chromedp.Run(tab, page.SetLifecycleEventsEnabled(true)); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch %s: lifecycle events: %w", kind, err)
	}
	log.Info().Msg("browser launched")

	return &ChromeSession{
		kind:        kind,
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		life:        life,
		opTimeout:   defaultOpTimeout,
		loadTimeout: defaultLoadTimeout,
	}, nil
}

// ChromeSession implements Session and CookieSession on a chromedp tab.
type ChromeSession struct {
	kind        Kind
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	life        *lifecycle

	opTimeout   time.Duration
	loadTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *ChromeSession) Kind() Kind { return s.kind }

// run executes actions on the tab, bounded by timeout and by ctx. A dead
// tab context is reported as ErrSessionLost.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.tab.Err() != nil {
		return ErrSessionLost
	}
	rctx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err == nil {
		return nil
	}
	if s.tab.Err() != nil {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func queryOpt(sel Selector) chromedp.QueryOption {
	if sel.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

func firstOpt(sel Selector) chromedp.QueryOption {
	if sel.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.loadTimeout, chromedp.Navigate(url))
}

func (s *ChromeSession) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, s.opTimeout, chromedp.Location(&u))
	return u, err
}

func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.opTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *ChromeSession) nodes(ctx context.Context, sel Selector) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.opTimeout, chromedp.Nodes(sel.Query, &nodes, queryOpt(sel), chromedp.AtLeast(0)))
	return nodes, err
}

func (s *ChromeSession) Query(ctx context.Context, sel Selector) ([]Element, error) {
	nodes, err := s.nodes(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromeElement{s: s, node: n})
	}
	return out, nil
}

func (s *ChromeSession) Count(ctx context.Context, sel Selector) (int, error) {
	nodes, err := s.nodes(ctx, sel)
	return len(nodes), err
}

func (s *ChromeSession) Text(ctx context.Context, sel Selector) (string, error) {
	var text string
	err := s.run(ctx, s.opTimeout, chromedp.Text(sel.Query, &text, firstOpt(sel)))
	return text, err
}

func (s *ChromeSession) Value(ctx context.Context, sel Selector) (string, error) {
	var v string
	err := s.run(ctx, s.opTimeout, chromedp.Value(sel.Query, &v, firstOpt(sel)))
	return v, err
}

func (s *ChromeSession) SetValue(ctx context.Context, sel Selector, value string) error {
	return s.run(ctx, s.opTimeout, chromedp.SetValue(sel.Query, value, firstOpt(sel)))
}

const selectByLabelJS = `(function(sel, label) {
	const el = document.querySelector(sel);
	if (!el || !el.options) return false;
	for (const o of el.options) {
		if (o.text.trim() === label) {
			el.value = o.value;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
})(%s, %s)`

var errNoOption = errors.New("browser: no option with that label")

func (s *ChromeSession) SelectOption(ctx context.Context, sel Selector, label string) error {
	if sel.By != ByCSS {
		return fmt.Errorf("browser: SelectOption needs a CSS selector, got %q", sel.Query)
	}
	q, _ := json.Marshal(sel.Query)
	l, _ := json.Marshal(label)
	var ok bool
	if err := s.run(ctx, s.opTimeout, chromedp.Evaluate(fmt.Sprintf(selectByLabelJS, q, l), &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", errNoOption, label)
	}
	return nil
}

func (s *ChromeSession) SendKeys(ctx context.Context, sel Selector, keys string) error {
	return s.run(ctx, s.opTimeout, chromedp.SendKeys(sel.Query, keys, firstOpt(sel)))
}

func (s *ChromeSession) Click(ctx context.Context, sel Selector, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opTimeout
	}
	s.life.markAction()
	return s.run(ctx, timeout, chromedp.Click(sel.Query, firstOpt(sel), chromedp.NodeVisible))
}

func (s *ChromeSession) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.loadTimeout
	}
	return s.run(ctx, timeout, chromedp.WaitVisible(sel.Query, firstOpt(sel)))
}

// WaitIdle waits for a navigation started by the last click to reach network
// idle, then for the document to be ready.
func (s *ChromeSession) WaitIdle(ctx context.Context) error {
	if err := s.waitNavigation(ctx); err != nil {
		return err
	}
	var complete bool
	return s.run(ctx, s.loadTimeout,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(`document.readyState === 'complete'`, &complete, chromedp.WithPollingInterval(100*time.Millisecond)),
	)
}

func (s *ChromeSession) waitNavigation(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()
	stop := context.AfterFunc(s.tab, cancel)
	defer stop()

	err := s.life.wait(wctx, navGrace)
	switch {
	case err == nil:
		return nil
	case s.tab.Err() != nil:
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("wait for navigation: %w", err)
}

func (s *ChromeSession) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.opTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Expires: c.Expires, HTTPOnly: c.HTTPOnly, Secure: c.Secure,
		})
	}
	return out, nil
}

func (s *ChromeSession) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			HTTPOnly: c.HTTPOnly, Secure: c.Secure,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return s.run(ctx, s.opTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// Close shuts the browser down. It never blocks longer than closeTimeout:
// a hung browser is killed with its allocator.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.tab) }()
		select {
		case s.closeErr = <-done:
		case <-time.After(closeTimeout):
			s.closeErr = errors.New("browser: close timed out")
		}
		s.tabCancel()
		s.allocCancel()
	})
	return s.closeErr
}

type chromeElement struct {
	s    *ChromeSession
	node *cdp.Node
}

func (e *chromeElement) Click(ctx context.Context) error {
	e.s.life.markAction()
	return e.s.run(ctx, e.s.opTimeout, chromedp.MouseClickNode(e.node))
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.s.run(ctx, e.s.opTimeout, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return text, err
}
