package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

// lifecycle follows main-frame navigations so a wait issued after a click
// blocks on the document the click loads, not the one it replaces.
type lifecycle struct {
	mu        sync.Mutex
	loads     int  // main-frame loads started
	settled   int  // last load that reached network idle (or was abandoned)
	committed bool // the latest load has a new document
	mark      int  // loads when the last click was dispatched
	changed   chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{changed: make(chan struct{})}
}

// listen returns a chromedp target listener for the frame main.
func (l *lifecycle) listen(main cdp.FrameID) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameStartedLoading:
			if e.FrameID == main {
				l.update(func() {
					l.loads++
					l.committed = false
				})
			}
		case *page.EventLifecycleEvent:
			if e.FrameID != main {
				return
			}
			switch e.Name {
			case "init":
				l.update(func() { l.committed = true })
			case "networkIdle":
				l.update(func() {
					if l.committed {
						l.settled = l.loads
					}
				})
			}
		case *page.EventFrameStoppedLoading:
			// a load that stops without a new document never goes idle
			if e.FrameID == main {
				l.update(func() {
					if !l.committed {
						l.settled = l.loads
					}
				})
			}
		}
	}
}

func (l *lifecycle) update(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
	close(l.changed)
	l.changed = make(chan struct{})
}

// markAction records that a click is about to be dispatched.
func (l *lifecycle) markAction() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mark = l.loads
}

// wait blocks until a load started since the last click has settled. When no
// load starts within grace the click did not navigate and wait returns.
func (l *lifecycle) wait(ctx context.Context, grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	expired := false
	for {
		l.mu.Lock()
		started := l.loads > l.mark
		done := started && l.settled >= l.loads
		ch := l.changed
		l.mu.Unlock()

		if done || (expired && !started) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-timer.C:
			expired = true
		}
	}
}
