// Package cdp drives a Chromium browser over the DevTools protocol and feeds
// its network and tab events to the interception engine.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/linkgrabber/internal/capture"
	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/intercept"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// Sink receives the browser's lifecycle events. *intercept.Engine satisfies it.
type Sink interface {
	OnSent(ev intercept.SentEvent)
	OnHeadersReceived(ctx context.Context, ev intercept.HeadersReceivedEvent, d intercept.Disposer) intercept.Disposition
	OnCompleted(ev intercept.CompletedEvent)
	OnErrored(ev intercept.ErroredEvent)
	OnTabCreated(ev intercept.TabCreatedEvent)
	OnTabUpdated(ev intercept.TabUpdatedEvent)
	OnTabRemoved(ev intercept.TabRemovedEvent)
	Keys() *intercept.KeySignal
}

// decisionSlack is added to the hand-off timeout for the whole decision.
const decisionSlack = 2 * time.Second

// Client manages CDP connections to browser tabs.
type Client struct {
	cfg   *config.Config
	store *capture.Store
	sink  Sink

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	controlID     target.ID

	passive   *passiveDisposer
	downloads *downloadCanceller
	// paused holds URLs recently seen at the Fetch response stage.
	paused *recentURLs

	tabs    map[target.ID]*TabContext
	newTabs map[target.ID]time.Time
	tabsMu  sync.RWMutex

	responses map[network.RequestID]responseMeta
	inflight  map[network.RequestID]chan struct{}
	reqMu     sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

type TabContext struct {
	ID     target.ID
	URL    string
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, store *capture.Store) *Client {
	c := &Client{
		cfg:       cfg,
		store:     store,
		tabs:      make(map[target.ID]*TabContext),
		newTabs:   make(map[target.ID]time.Time),
		responses: make(map[network.RequestID]responseMeta),
		inflight:  make(map[network.RequestID]chan struct{}),
		done:      make(chan struct{}),
	}
	if cfg.Passive {
		c.passive = newPassiveDisposer(capture.GraceWindow)
		c.downloads = &downloadCanceller{
			held:     store,
			decided:  c.passive,
			cancel:   c.cancelBrowserDownload,
			interval: downloadPollInterval,
			done:     c.done,
		}
	} else {
		c.paused = newRecentURLs(capture.GraceWindow + cfg.HandoffTimeout() + decisionSlack)
	}
	return c
}

// CanBlock reports whether held responses are stopped before the browser
// acts on them.
func (c *Client) CanBlock() bool {
	return c.passive == nil
}

// Connect attaches to every open page and follows tabs opened later.
func (c *Client) Connect(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("cdp: connect: sink is required")
	}
	c.sink = sink

	cdpURL := c.cfg.GetCDPURL()
	slog.Info("Connecting to Chromium", "url", cdpURL, "passive", c.cfg.Passive)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(c.browserCtx); err != nil {
		return fmt.Errorf("cdp: connect: %w", err)
	}
	if t := chromedp.FromContext(c.browserCtx).Target; t != nil {
		c.controlID = t.TargetID
	}

	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return fmt.Errorf("cdp: enumerate targets: %w", err)
	}
	slog.Info("Found browser targets", "count", len(targets))

	attached := 0
	for _, info := range targets {
		tabID, url, title, ok := tabEvent(info)
		if !ok || info.TargetID == c.controlID {
			continue
		}
		c.sink.OnTabUpdated(intercept.TabUpdatedEvent{TabID: tabID, URL: url, Title: title})
		if err := c.attachToTab(info.TargetID, url); err != nil {
			slog.Error("Failed to attach to tab", "target_id", info.TargetID, "url", truncateURL(url), "error", err)
			continue
		}
		attached++
	}

	chromedp.ListenBrowser(c.browserCtx, c.onBrowserEvent)
	if err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		bctx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)
		if err := target.SetDiscoverTargets(true).Do(bctx); err != nil {
			return err
		}
		// Download events drive the passive cancel and catch downloads that
		// escaped the Fetch pause in blocking mode.
		return browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDefault).
			WithEventsEnabled(true).
			Do(bctx)
	})); err != nil {
		return fmt.Errorf("cdp: enable target discovery: %w", err)
	}

	slog.Info("Attached to tabs", "count", attached)
	return nil
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	c.tabsMu.Lock()
	if _, ok := c.tabs[targetID]; ok {
		c.tabsMu.Unlock()
		return nil
	}
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(targetID))
	tab := &TabContext{ID: targetID, URL: url, ctx: tabCtx, cancel: tabCancel}
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	// Listen before enabling Fetch so no paused request goes unanswered.
	chromedp.ListenTarget(tabCtx, c.createEventHandler(targetID, tabCtx))

	actions := []chromedp.Action{
		network.Enable(),
		page.Enable(),
		runtime.AddBinding(keyBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(keyScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, err := runtime.Evaluate(keyScript).Do(ctx)
			return err
		}),
	}
	if c.passive == nil {
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
			URLPattern:   "*",
			ResourceType: network.ResourceTypeDocument,
			RequestStage: fetch.RequestStageResponse,
		}}))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		c.removeTab(targetID)
		return fmt.Errorf("cdp: enable domains: %w", err)
	}

	slog.Info("Attached to tab", "target_id", targetID, "url", truncateURL(url))
	return nil
}

func (c *Client) removeTab(targetID target.ID) bool {
	c.tabsMu.Lock()
	tab, ok := c.tabs[targetID]
	delete(c.tabs, targetID)
	delete(c.newTabs, targetID)
	c.tabsMu.Unlock()
	if ok {
		tab.cancel()
	}
	return ok
}

func (c *Client) isAttached(targetID target.ID) bool {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	_, ok := c.tabs[targetID]
	return ok
}

func (c *Client) createEventHandler(targetID target.ID, tabCtx context.Context) func(ev interface{}) {
	tabID := types.TabID(targetID)
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				c.sink.OnTabUpdated(intercept.TabUpdatedEvent{TabID: tabID, URL: e.Frame.URL + e.Frame.URLFragment})
			}
		case *page.EventNavigatedWithinDocument:
			if string(e.FrameID) == string(targetID) {
				c.sink.OnTabUpdated(intercept.TabUpdatedEvent{TabID: tabID, URL: e.URL})
			}
		case *runtime.EventBindingCalled:
			if e.Name == keyBinding {
				c.sink.Keys().Set(e.Payload)
			}
		case *network.EventRequestWillBeSent:
			c.sink.OnSent(sentEvent(targetID, e))
		case *network.EventResponseReceived:
			c.reqMu.Lock()
			c.responses[e.RequestID] = responseMetaFor(e)
			c.reqMu.Unlock()
			c.store.Touch(string(e.RequestID))
			if c.passive != nil && e.Type == network.ResourceTypeDocument {
				c.decide(tabCtx, passiveHeadersEvent(e), c.passive)
			}
		case *network.EventDataReceived:
			c.store.Touch(string(e.RequestID))
		case *fetch.EventRequestPaused:
			c.paused.add(requestURL(e.Request))
			c.decide(tabCtx, headersReceivedEvent(e), fetchDisposer{tabCtx: tabCtx})
		case *network.EventLoadingFinished:
			meta, ok := c.takeResponse(e.RequestID)
			if !ok {
				meta = responseMeta{kind: types.ResourceOther}
			}
			c.finish(e.RequestID, func() { c.sink.OnCompleted(completedEvent(e.RequestID, meta)) })
		case *network.EventLoadingFailed:
			c.takeResponse(e.RequestID)
			reason := e.ErrorText
			c.finish(e.RequestID, func() {
				c.sink.OnErrored(intercept.ErroredEvent{ID: string(e.RequestID), Reason: reason})
			})
		}
	}
}

// decide runs the engine off the event loop, which must never wait on a CDP
// call. Terminal events for the same id are held back until it returns.
func (c *Client) decide(tabCtx context.Context, ev intercept.HeadersReceivedEvent, d intercept.Disposer) {
	id := network.RequestID(ev.ID)
	ch := make(chan struct{})
	c.reqMu.Lock()
	c.inflight[id] = ch
	c.reqMu.Unlock()

	go func() {
		defer func() {
			c.reqMu.Lock()
			if c.inflight[id] == ch {
				delete(c.inflight, id)
			}
			c.reqMu.Unlock()
			close(ch)
		}()
		ctx, cancel := context.WithTimeout(tabCtx, c.cfg.HandoffTimeout()+decisionSlack)
		defer cancel()
		c.sink.OnHeadersReceived(ctx, ev, d)
	}()
}

func (c *Client) finish(id network.RequestID, fn func()) {
	c.reqMu.Lock()
	ch, ok := c.inflight[id]
	c.reqMu.Unlock()
	if !ok {
		fn()
		return
	}
	go func() {
		<-ch
		fn()
	}()
}

func (c *Client) takeResponse(id network.RequestID) (responseMeta, bool) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	m, ok := c.responses[id]
	delete(c.responses, id)
	return m, ok
}

// CloseTab closes a page target.
func (c *Client) CloseTab(ctx context.Context, tabID types.TabID) error {
	if c.browserCtx == nil {
		return fmt.Errorf("cdp: close tab: not connected")
	}
	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(bctx context.Context) error {
		bctx = cdp.WithExecutor(bctx, chromedp.FromContext(bctx).Browser)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			bctx, cancel = context.WithDeadline(bctx, deadline)
			defer cancel()
		}
		return target.CloseTarget(target.ID(tabID)).Do(bctx)
	}))
	if err != nil {
		return fmt.Errorf("cdp: close tab %s: %w", tabID, err)
	}
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.tabsMu.Lock()
		for id, tab := range c.tabs {
			tab.cancel()
			delete(c.tabs, id)
		}
		c.tabsMu.Unlock()

		if c.browserCancel != nil {
			c.browserCancel()
		}
		if c.allocCancel != nil {
			c.allocCancel()
		}
		slog.Info("CDP client closed")
	})
	return nil
}

func (c *Client) TabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
