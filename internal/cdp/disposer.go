package cdp

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/linkgrabber/internal/intercept"
)

// fetchDisposer resolves responses paused by the Fetch domain of one tab.
type fetchDisposer struct {
	tabCtx context.Context
}

func (d fetchDisposer) Pass(ctx context.Context, ev intercept.HeadersReceivedEvent) error {
	return d.run(ctx, fetch.ContinueResponse(fetch.RequestID(ev.HostRef)))
}

func (d fetchDisposer) Cancel(ctx context.Context, ev intercept.HeadersReceivedEvent) error {
	return d.run(ctx, fetch.FailRequest(fetch.RequestID(ev.HostRef), network.ErrorReasonAborted))
}

func (fetchDisposer) CanBlock() bool { return true }

// run executes on the tab, not on ctx: a paused request must be resolved even
// when the hand-off ran out of time.
func (d fetchDisposer) run(_ context.Context, action chromedp.Action) error {
	ctx, cancel := context.WithTimeout(d.tabCtx, 10*time.Second)
	defer cancel()
	return chromedp.Run(ctx, action)
}

// passiveDisposer cannot stop a response. Cancel only remembers the decision
// so the download that follows can be cancelled by the browser.
type passiveDisposer struct {
	mu        sync.Mutex
	cancelled map[string]*time.Timer
	keep      time.Duration
}

func newPassiveDisposer(keep time.Duration) *passiveDisposer {
	return &passiveDisposer{cancelled: make(map[string]*time.Timer), keep: keep}
}

func (d *passiveDisposer) Pass(context.Context, intercept.HeadersReceivedEvent) error { return nil }

func (d *passiveDisposer) Cancel(_ context.Context, ev intercept.HeadersReceivedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.cancelled[ev.ID]; ok {
		t.Stop()
	}
	id := ev.ID
	d.cancelled[id] = time.AfterFunc(d.keep, func() { d.forget(id) })
	return nil
}

func (d *passiveDisposer) CanBlock() bool { return false }

// take reports whether id was cancelled and forgets it.
func (d *passiveDisposer) take(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.cancelled[id]
	if ok {
		t.Stop()
		delete(d.cancelled, id)
	}
	return ok
}

func (d *passiveDisposer) forget(id string) {
	d.mu.Lock()
	delete(d.cancelled, id)
	d.mu.Unlock()
}
