package cdp

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/linkgrabber/internal/intercept"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

const (
	downloadPollInterval = 50 * time.Millisecond

	// newTabWindow bounds how long after creation a tab's downloads may have
	// started before its Fetch interception was enabled.
	newTabWindow = 30 * time.Second
)

type heldFinder interface {
	FindHeldByURL(rawURL string) (*types.HeldResponse, bool)
}

// downloadCanceller cancels browser downloads whose response was handed off
// while the browser kept going (passive mode).
type downloadCanceller struct {
	held     heldFinder
	decided  *passiveDisposer
	cancel   func(guid string) error
	interval time.Duration
	done     <-chan struct{}
}

// await polls until the response behind url was decided, timeout passes or
// the client closes. It reports whether the download was cancelled.
func (w *downloadCanceller) await(guid, url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if held, ok := w.held.FindHeldByURL(url); ok && w.decided.take(held.ID) {
			if err := w.cancel(guid); err != nil {
				slog.Warn("Failed to cancel browser download", "guid", guid, "url", truncateURL(url), "error", err)
				return false
			}
			slog.Info("Cancelled browser download", "guid", guid, "id", held.ID, "url", truncateURL(url))
			return true
		}
		if time.Now().After(deadline) {
			slog.Debug("No hand-off for browser download", "guid", guid, "url", truncateURL(url))
			return false
		}
		select {
		case <-w.done:
			return false
		case <-ticker.C:
		}
	}
}

// recentURLs remembers URLs, without fragment, for a limited time.
type recentURLs struct {
	mu   sync.Mutex
	seen map[string]time.Time
	keep time.Duration
	now  func() time.Time
}

func newRecentURLs(keep time.Duration) *recentURLs {
	return &recentURLs{seen: make(map[string]time.Time), keep: keep, now: time.Now}
}

func (r *recentURLs) add(url string) {
	url = stripFragment(url)
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for u, at := range r.seen {
		if now.Sub(at) > r.keep {
			delete(r.seen, u)
		}
	}
	r.seen[url] = now
}

func (r *recentURLs) has(url string) bool {
	url = stripFragment(url)
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[url]
	return ok && r.now().Sub(at) <= r.keep
}

// downloadDisposer resolves a download the browser already started. Cancel
// stops it by guid.
type downloadDisposer struct {
	guid   string
	cancel func(guid string) error
}

func (d downloadDisposer) Pass(context.Context, intercept.HeadersReceivedEvent) error { return nil }

func (d downloadDisposer) Cancel(context.Context, intercept.HeadersReceivedEvent) error {
	return d.cancel(d.guid)
}

func (downloadDisposer) CanBlock() bool { return true }

// unpausedDownload describes a download that began without its response being
// paused, typically a link opened in a new tab before attach finished.
type unpausedDownload struct {
	guid          string
	url           string
	suggestedName string
	tabID         types.TabID
}

// decideUnpaused runs the download through the engine from what the browser
// reported when it started. Request headers are unknown at that point.
func decideUnpaused(ctx context.Context, sink Sink, dl unpausedDownload, cancel func(guid string) error) intercept.Disposition {
	id := "download-" + dl.guid
	sink.OnSent(intercept.SentEvent{
		ID:        id,
		URL:       dl.url,
		Method:    http.MethodGet,
		TabID:     dl.tabID,
		FrameKind: types.FrameMain,
	})

	var headers types.Headers
	if name := strings.TrimSpace(dl.suggestedName); name != "" {
		headers = append(headers, types.Header{
			Name:  "Content-Disposition",
			Value: mime.FormatMediaType("attachment", map[string]string{"filename": name}),
		})
	}
	disp := sink.OnHeadersReceived(ctx, intercept.HeadersReceivedEvent{
		ID:      id,
		URL:     dl.url,
		Status:  http.StatusOK,
		Headers: headers,
	}, downloadDisposer{guid: dl.guid, cancel: cancel})

	if disp == intercept.DispositionPass {
		sink.OnCompleted(intercept.CompletedEvent{ID: id, URL: dl.url, ResourceKind: types.ResourceOther, Status: http.StatusOK, Headers: headers})
	}
	return disp
}

func stripFragment(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		return url[:i]
	}
	return url
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
