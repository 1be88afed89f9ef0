package cdp

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/linkgrabber/internal/intercept"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

func (c *Client) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		tabID, url, title, ok := tabEvent(e.TargetInfo)
		if !ok || e.TargetInfo.TargetID == c.controlID || c.isAttached(e.TargetInfo.TargetID) {
			return
		}
		// A new tab counts as fresh until it commits a navigation elsewhere.
		if url == "" {
			url = "about:blank"
		}
		c.markNewTab(e.TargetInfo.TargetID)
		c.sink.OnTabCreated(intercept.TabCreatedEvent{TabID: tabID, URL: url, Title: title})
		go func(id target.ID, url string) {
			if err := c.attachToTab(id, url); err != nil {
				slog.Warn("Failed to attach to new tab", "target_id", id, "url", truncateURL(url), "error", err)
			}
		}(e.TargetInfo.TargetID, url)
	case *target.EventTargetInfoChanged:
		tabID, url, title, ok := tabEvent(e.TargetInfo)
		if !ok || !c.isAttached(e.TargetInfo.TargetID) {
			return
		}
		c.sink.OnTabUpdated(intercept.TabUpdatedEvent{TabID: tabID, URL: url, Title: title})
	case *target.EventTargetDestroyed:
		if c.removeTab(e.TargetID) {
			c.sink.OnTabRemoved(intercept.TabRemovedEvent{TabID: types.TabID(e.TargetID)})
			slog.Info("Tab closed", "target_id", e.TargetID)
		}
	case *browser.EventDownloadWillBegin:
		if c.downloads != nil {
			go c.downloads.await(e.GUID, e.URL, c.cfg.HandoffTimeout()+decisionSlack)
			return
		}
		c.onUnpausedDownload(e)
	}
}

// onUnpausedDownload decides downloads that never went through the Fetch
// pause. Only downloads in tabs opened moments ago qualify: their first
// navigation can start before interception is enabled.
func (c *Client) onUnpausedDownload(e *browser.EventDownloadWillBegin) {
	if !isHTTPURL(e.URL) || c.paused.has(e.URL) {
		return
	}
	tabID := target.ID(e.FrameID)
	if !c.isNewTab(tabID) {
		return
	}
	slog.Info("Download started before interception", "guid", e.GUID, "target_id", tabID, "url", truncateURL(e.URL))
	dl := unpausedDownload{guid: e.GUID, url: e.URL, suggestedName: e.SuggestedFilename, tabID: types.TabID(tabID)}
	go func() {
		ctx, cancel := context.WithTimeout(c.browserCtx, c.cfg.HandoffTimeout()+decisionSlack)
		defer cancel()
		decideUnpaused(ctx, c.sink, dl, c.cancelBrowserDownload)
	}()
}

func (c *Client) cancelBrowserDownload(guid string) error {
	return chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return browser.CancelDownload(guid).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	}))
}

func (c *Client) markNewTab(id target.ID) {
	c.tabsMu.Lock()
	c.newTabs[id] = time.Now()
	c.tabsMu.Unlock()
}

func (c *Client) isNewTab(id target.ID) bool {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	at, ok := c.newTabs[id]
	return ok && time.Since(at) <= newTabWindow
}
