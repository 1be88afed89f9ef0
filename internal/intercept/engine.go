// Package intercept decides, per response, whether a download is handed to the
// external download manager and whether completed traffic is reportable media.
package intercept

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/linkgrabber/internal/capture"
	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// Options wires the engine to its collaborators. Store, Policy and Handoff
// are required.
type Options struct {
	Store    *capture.Store
	Policy   PolicySource
	Handoff  Handoff
	Media    MediaSink
	Tabs     TabCloser
	Keys     *KeySignal
	Recorder Recorder

	// GraceWindow overrides capture.GraceWindow, for tests.
	GraceWindow time.Duration
}

// Engine is safe for concurrent use. Events for different ids never wait on
// each other; events for one id are expected in host order.
type Engine struct {
	store    *capture.Store
	policy   PolicySource
	handoff  Handoff
	media    MediaSink
	tabs     TabCloser
	keys     *KeySignal
	recorder Recorder
	grace    time.Duration

	lastPolicy atomic.Pointer[config.Policy]
	counters   counters
}

// Decision is the journal record written for every disposition and media
// report.
type Decision struct {
	Time    time.Time   `json:"time"`
	ID      string      `json:"id"`
	Kind    string      `json:"kind"`
	URL     string      `json:"url"`
	TabID   types.TabID `json:"tab_id,omitempty"`
	Outcome string      `json:"outcome"`
	Reason  string      `json:"reason"`
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("intercept: store is required")
	}
	if opts.Handoff == nil {
		return nil, errors.New("intercept: handoff is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("intercept: policy source is required")
	}
	p := opts.Policy.Current()
	if p == nil {
		return nil, errors.New("intercept: no policy snapshot")
	}
	if opts.Keys == nil {
		opts.Keys = &KeySignal{}
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = capture.GraceWindow
	}
	e := &Engine{
		store:    opts.Store,
		policy:   opts.Policy,
		handoff:  opts.Handoff,
		media:    opts.Media,
		tabs:     opts.Tabs,
		keys:     opts.Keys,
		recorder: opts.Recorder,
		grace:    opts.GraceWindow,
	}
	e.lastPolicy.Store(p)
	return e, nil
}

// Keys returns the modifier key signal the host feeds.
func (e *Engine) Keys() *KeySignal {
	return e.keys
}

// currentPolicy never fails once booted; a nil snapshot falls back to the
// last one seen.
func (e *Engine) currentPolicy() *config.Policy {
	if p := e.policy.Current(); p != nil {
		e.lastPolicy.Store(p)
		return p
	}
	return e.lastPolicy.Load()
}

// OnSent tracks a new request attempt. A redirect re-sends the same id and
// starts a fresh attempt.
func (e *Engine) OnSent(ev SentEvent) {
	if ev.ID == "" {
		return
	}
	e.counters.sent.Add(1)
	e.store.ForgetDisposed(ev.ID)
	e.store.Track(&types.PendingRequest{
		ID:          ev.ID,
		URL:         ev.URL,
		Method:      ev.Method,
		Headers:     ev.Headers,
		OriginURL:   ev.OriginURL,
		DocumentURL: ev.DocumentURL,
		TabID:       ev.TabID,
		FrameKind:   ev.FrameKind,
		Timestamp:   time.Now(),
	})
}

// OnHeadersReceived evaluates a held response and resolves it through d.
// It returns after exactly one of d.Pass or d.Cancel was called. The only
// wait is the hand-off to the download manager.
func (e *Engine) OnHeadersReceived(ctx context.Context, ev HeadersReceivedEvent, d Disposer) Disposition {
	e.counters.observed.Add(1)
	if e.store.IsDisposed(ev.ID) {
		// Re-delivery of a decided id: let it through untouched.
		if err := d.Pass(ctx, ev); err != nil {
			slog.Debug("pass failed", "id", ev.ID, "error", err)
		}
		return DispositionPass
	}

	req, tracked := e.store.Get(ev.ID)
	held := &types.HeldResponse{
		ID:        ev.ID,
		URL:       ev.URL,
		Status:    ev.Status,
		Headers:   ev.Headers,
		Timestamp: time.Now(),
	}
	if tracked {
		held.FrameKind = req.FrameKind
		if held.URL == "" {
			held.URL = req.URL
		}
	}
	e.store.HoldResponse(held)
	var releaseAfter time.Duration
	defer func() { e.store.ReleaseResponse(ev.ID, releaseAfter) }()

	if !tracked {
		return e.resolve(ctx, ev, d, nil, DispositionPass, ReasonUntracked)
	}

	p := e.currentPolicy()
	docURL := e.store.ResolveDocumentURL(req.DocumentURL, req.TabID)
	item, reason, ok := evaluateDownload(downloadInput{
		req:         req,
		status:      ev.Status,
		headers:     ev.Headers,
		documentURL: docURL,
		heldKey:     e.keys.Load(),
	}, p)
	if !ok {
		if reason == ReasonShortcutHeld {
			e.keys.ConsumeAndClear()
			slog.Info("shortcut held, leaving download to the browser", "id", ev.ID, "url", req.URL)
		}
		return e.resolve(ctx, ev, d, req, DispositionPass, reason)
	}

	accepted, reason := e.submit(ctx, req, item)
	if !accepted {
		return e.resolve(ctx, ev, d, req, DispositionPass, reason)
	}
	if !d.CanBlock() {
		// Keep the record around so the host's own download cancel can find it.
		releaseAfter = e.grace
	}
	disp := e.resolve(ctx, ev, d, req, DispositionCancel, reason)
	e.store.Untrack(ev.ID)
	e.closeIfFreshTab(ctx, req.TabID)
	return disp
}

// submit hands the item off. When the manager does not answer the outcome
// follows allow_pass_on_no_response: pass when set, cancel when not.
func (e *Engine) submit(ctx context.Context, req *types.PendingRequest, item types.DirectDownloadItem) (bool, string) {
	e.counters.submitted.Add(1)
	ok, err := e.handoff.Submit(ctx, []types.DirectDownloadItem{item})
	if err != nil {
		e.counters.handoffErrors.Add(1)
		if e.currentPolicy().AllowPassOnNoResponse {
			slog.Warn("download manager did not respond, passing to browser", "id", req.ID, "url", req.URL, "error", err)
			return false, ReasonUnreachable
		}
		slog.Warn("download manager did not respond, cancelling browser download", "id", req.ID, "url", req.URL, "error", err)
		return true, ReasonAssumed
	}
	if !ok {
		e.counters.rejected.Add(1)
		slog.Info("download manager rejected item", "id", req.ID, "url", req.URL)
		return false, ReasonRejected
	}
	e.counters.accepted.Add(1)
	slog.Info("download handed off", "id", req.ID, "url", req.URL, "tab_id", req.TabID)
	return true, ReasonAccepted
}

func (e *Engine) resolve(ctx context.Context, ev HeadersReceivedEvent, d Disposer, req *types.PendingRequest, disp Disposition, reason string) Disposition {
	var err error
	if disp == DispositionCancel {
		e.counters.cancelled.Add(1)
		err = d.Cancel(ctx, ev)
	} else {
		e.counters.passed.Add(1)
		err = d.Pass(ctx, ev)
	}
	if err != nil {
		slog.Warn("failed to apply disposition", "id", ev.ID, "disposition", disp.String(), "error", err)
	}
	e.store.MarkDisposed(ev.ID)

	rec := Decision{
		Time:    time.Now().UTC(),
		ID:      ev.ID,
		Kind:    "download",
		URL:     ev.URL,
		Outcome: disp.String(),
		Reason:  reason,
	}
	if req != nil {
		rec.URL = req.URL
		rec.TabID = req.TabID
	}
	e.record(rec)
	slog.Debug("disposition", "id", ev.ID, "disposition", disp.String(), "reason", reason)
	return disp
}

func (e *Engine) closeIfFreshTab(ctx context.Context, tabID types.TabID) {
	if tabID == "" || e.tabs == nil {
		return
	}
	if !e.currentPolicy().CloseNewTabIfCaptured || !e.store.IsFreshTab(tabID) {
		return
	}
	e.store.ClearFreshTab(tabID)
	if err := e.tabs.CloseTab(ctx, tabID); err != nil {
		slog.Warn("failed to close captured tab", "tab_id", tabID, "error", err)
		return
	}
	slog.Info("closed captured tab", "tab_id", tabID)
}

// OnCompleted ends the request and runs the media checks. A second
// completion for the same id finds nothing tracked and does nothing.
func (e *Engine) OnCompleted(ev CompletedEvent) {
	e.counters.completed.Add(1)
	e.store.ForgetDisposed(ev.ID)
	req, ok := e.store.Untrack(ev.ID)
	if !ok {
		return
	}
	if ev.ResourceKind != types.ResourceMedia && ev.ResourceKind != types.ResourceHLS {
		return
	}

	p := e.currentPolicy()
	docURL := e.store.ResolveDocumentURL(req.DocumentURL, req.TabID)
	item, reason, ok := evaluateMedia(mediaInput{req: req, ev: ev, documentURL: docURL}, p)
	if !ok {
		slog.Debug("media dropped", "id", ev.ID, "url", req.URL, "reason", reason)
		return
	}

	e.counters.mediaReported.Add(1)
	if e.media != nil {
		e.media.OnMediaDetected(req.TabID, item)
	}
	e.record(Decision{
		Time:    time.Now().UTC(),
		ID:      ev.ID,
		Kind:    "media",
		URL:     item.URL,
		TabID:   req.TabID,
		Outcome: item.MediaType,
		Reason:  reason,
	})
	slog.Info("media detected", "id", ev.ID, "media_type", item.MediaType, "url", item.URL, "tab_id", req.TabID)
}

func (e *Engine) OnErrored(ev ErroredEvent) {
	e.counters.errored.Add(1)
	e.store.ForgetDisposed(ev.ID)
	if _, ok := e.store.Untrack(ev.ID); ok {
		slog.Debug("request failed", "id", ev.ID, "reason", ev.Reason)
	}
}

// OnTabCreated caches the tab. A tab that opens with a URL counts as fresh
// until it navigates somewhere else.
func (e *Engine) OnTabCreated(ev TabCreatedEvent) {
	e.store.UpsertTab(types.TabRecord{ID: ev.TabID, URL: ev.URL, Title: ev.Title})
	if ev.URL != "" {
		e.store.MarkFreshTab(ev.TabID, ev.URL)
	}
}

func (e *Engine) OnTabUpdated(ev TabUpdatedEvent) {
	prev, known := e.store.Tab(ev.TabID)
	if ev.URL != "" && (!known || prev.URL != ev.URL) {
		e.store.ClearFreshTab(ev.TabID)
	}
	rec := types.TabRecord{ID: ev.TabID, URL: ev.URL, Title: ev.Title}
	if rec.URL == "" {
		rec.URL = prev.URL
	}
	if rec.Title == "" {
		rec.Title = prev.Title
	}
	e.store.UpsertTab(rec)
}

type tabForgetter interface {
	ForgetTab(tabID types.TabID)
}

func (e *Engine) OnTabRemoved(ev TabRemovedEvent) {
	e.store.DropTab(ev.TabID)
	if f, ok := e.media.(tabForgetter); ok {
		f.ForgetTab(ev.TabID)
	}
}

func (e *Engine) record(rec Decision) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Write(rec); err != nil {
		slog.Debug("journal write failed", "id", rec.ID, "error", err)
	}
}
