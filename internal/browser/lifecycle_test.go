package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const frame = cdp.FrameID("main")

func waitAsync(l *lifecycle, grace time.Duration) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.wait(context.Background(), grace) }()
	return done
}

func TestWaitBlocksUntilClickedNavigationIsIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := newLifecycle()
	emit := l.listen(frame)
	l.markAction()
	done := waitAsync(l, 50*time.Millisecond)

	emit(&page.EventFrameStartedLoading{FrameID: frame})
	time.Sleep(100 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("returned while the old document was still showing")
	default:
	}

	emit(&page.EventLifecycleEvent{FrameID: "child", Name: "init"})
	emit(&page.EventLifecycleEvent{FrameID: frame, Name: "networkIdle"})
	select {
	case <-done:
		t.Fatal("idle before the new document committed")
	case <-time.After(20 * time.Millisecond):
	}

	emit(&page.EventLifecycleEvent{FrameID: frame, Name: "init"})
	emit(&page.EventFrameStoppedLoading{FrameID: frame})
	emit(&page.EventLifecycleEvent{FrameID: frame, Name: "networkIdle"})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after network idle")
	}
}

func TestWaitReturnsWhenClickDoesNotNavigate(t *testing.T) {
	l := newLifecycle()
	emit := l.listen(frame)
	emit(&page.EventFrameStartedLoading{FrameID: frame})
	emit(&page.EventLifecycleEvent{FrameID: frame, Name: "init"})
	emit(&page.EventLifecycleEvent{FrameID: frame, Name: "networkIdle"})

	l.markAction()
	start := time.Now()
	require.NoError(t, l.wait(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "waits out the grace for a navigation")
}

func TestWaitSettlesAbandonedLoad(t *testing.T) {
	l := newLifecycle()
	emit := l.listen(frame)
	l.markAction()
	emit(&page.EventFrameStartedLoading{FrameID: frame})
	emit(&page.EventFrameStoppedLoading{FrameID: frame})
	require.NoError(t, l.wait(context.Background(), time.Hour))
}

func TestWaitHonoursContext(t *testing.T) {
	l := newLifecycle()
	l.markAction()
	l.listen(frame)(&page.EventFrameStartedLoading{FrameID: frame})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.wait(ctx, time.Hour), context.DeadlineExceeded)
}
