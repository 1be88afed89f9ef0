package intercept

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/linkgrabber/internal/capture"
	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

type fakeDisposer struct {
	canBlock bool

	mu      sync.Mutex
	passed  []string
	cancels []string
}

func (f *fakeDisposer) Pass(_ context.Context, ev HeadersReceivedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passed = append(f.passed, ev.ID)
	return nil
}

func (f *fakeDisposer) Cancel(_ context.Context, ev HeadersReceivedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, ev.ID)
	return nil
}

func (f *fakeDisposer) CanBlock() bool { return f.canBlock }

func (f *fakeDisposer) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.passed), len(f.cancels)
}

type fakeHandoff struct {
	ok    bool
	err   error
	gate  map[string]chan struct{}
	mu    sync.Mutex
	items []types.DirectDownloadItem
}

func (f *fakeHandoff) Submit(ctx context.Context, items []types.DirectDownloadItem) (bool, error) {
	f.mu.Lock()
	f.items = append(f.items, items...)
	gate := f.gate[items[0].Link]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.ok, f.err
}

func (f *fakeHandoff) submitted() []types.DirectDownloadItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.DirectDownloadItem(nil), f.items...)
}

type fakeSink struct {
	mu    sync.Mutex
	items []types.MediaItem
	tabs  []types.TabID
}

func (f *fakeSink) OnMediaDetected(tabID types.TabID, item types.MediaItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	f.tabs = append(f.tabs, tabID)
}

type fakeCloser struct {
	mu     sync.Mutex
	closed []types.TabID
}

func (f *fakeCloser) CloseTab(_ context.Context, tabID types.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tabID)
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []Decision
}

func (f *fakeRecorder) Write(record any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := record.(Decision)
	if !ok {
		return errors.New("unexpected record type")
	}
	f.records = append(f.records, d)
	return nil
}

type harness struct {
	engine   *Engine
	store    *capture.Store
	holder   *config.Holder
	handoff  *fakeHandoff
	sink     *fakeSink
	closer   *fakeCloser
	recorder *fakeRecorder
}

func newHarness(t *testing.T, mutate func(p *config.Policy)) *harness {
	t.Helper()
	p := config.DefaultPolicy()
	if mutate != nil {
		mutate(p)
	}
	holder, err := config.NewStaticHolder("", p)
	if err != nil {
		t.Fatalf("NewStaticHolder() error = %v", err)
	}
	store := capture.NewStore()
	t.Cleanup(store.Close)

	h := &harness{
		store:    store,
		holder:   holder,
		handoff:  &fakeHandoff{ok: true},
		sink:     &fakeSink{},
		closer:   &fakeCloser{},
		recorder: &fakeRecorder{},
	}
	h.engine, err = New(Options{
		Store:       store,
		Policy:      holder,
		Handoff:     h.handoff,
		Media:       h.sink,
		Tabs:        h.closer,
		Recorder:    h.recorder,
		GraceWindow: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func zipRequest(id, url string) SentEvent {
	return SentEvent{
		ID:        id,
		URL:       url,
		Method:    "GET",
		TabID:     "5",
		FrameKind: types.FrameMain,
		Headers: types.Headers{
			{Name: "User-Agent", Value: "test-agent"},
			{Name: "Cookie", Value: "session=1"},
		},
	}
}

func zipResponse(id string) HeadersReceivedEvent {
	return HeadersReceivedEvent{
		ID:     id,
		Status: 200,
		Headers: types.Headers{
			{Name: "Content-Type", Value: "application/zip"},
			{Name: "Content-Length", Value: "50000"},
		},
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := capture.NewStore()
	t.Cleanup(store.Close)
	holder, _ := config.NewStaticHolder("", config.DefaultPolicy())

	if _, err := New(Options{Policy: holder, Handoff: &fakeHandoff{}}); err == nil {
		t.Fatalf("New() without store succeeded")
	}
	if _, err := New(Options{Store: store, Policy: holder}); err == nil {
		t.Fatalf("New() without handoff succeeded")
	}
	if _, err := New(Options{Store: store, Handoff: &fakeHandoff{}}); err == nil {
		t.Fatalf("New() without policy succeeded")
	}
}

func TestDirectDownloadAccepted(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}

	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d)

	if got != DispositionCancel {
		t.Fatalf("disposition = %v; want cancel", got)
	}
	items := h.handoff.submitted()
	if len(items) != 1 {
		t.Fatalf("submitted %d items; want 1", len(items))
	}
	item := items[0]
	if item.Link != "https://x/a.zip" || item.Type != "http" {
		t.Fatalf("item = %+v", item)
	}
	if item.SuggestedName == nil || *item.SuggestedName != "a.zip" {
		t.Fatalf("SuggestedName = %v; want a.zip", item.SuggestedName)
	}
	if item.Headers["Cookie"] != "session=1" {
		t.Fatalf("item headers must come from the request: %v", item.Headers)
	}
	if item.Description != nil {
		t.Fatalf("Description = %v; want nil", *item.Description)
	}
	if passes, cancels := d.counts(); passes != 0 || cancels != 1 {
		t.Fatalf("passes=%d cancels=%d; want 0/1", passes, cancels)
	}
	if _, ok := h.store.Get("1"); ok {
		t.Fatalf("cancelled request still tracked")
	}
	if _, ok := h.store.TakeResponse("1"); ok {
		t.Fatalf("held response not released when the host can block")
	}
}

func TestDirectDownloadPassCases(t *testing.T) {
	tests := []struct {
		name   string
		policy func(p *config.Policy)
		sent   func(ev *SentEvent)
		resp   func(ev *HeadersReceivedEvent)
		reason string
	}{
		{
			name:   "page_component",
			resp:   func(ev *HeadersReceivedEvent) { ev.Headers[0].Value = "text/html" },
			reason: ReasonPageComponent,
		},
		{
			name:   "blacklisted",
			policy: func(p *config.Policy) { p.BlacklistedURLs = []string{"*://x/*"} },
			reason: ReasonBlacklisted,
		},
		{
			name:   "sub_resource",
			sent:   func(ev *SentEvent) { ev.FrameKind = types.FrameOther },
			reason: ReasonNotDocument,
		},
		{
			name:   "post",
			sent:   func(ev *SentEvent) { ev.Method = "POST" },
			reason: ReasonMethod,
		},
		{
			name:   "auto_capture_off",
			policy: func(p *config.Policy) { p.AutoCaptureLinks = false },
			reason: ReasonAutoCaptureOff,
		},
		{
			name:   "below_minimum",
			policy: func(p *config.Policy) { p.CaptureFileSizeMinimumKB = 100 },
			reason: ReasonBelowMinimum,
		},
		{
			name:   "no_filename",
			sent:   func(ev *SentEvent) { ev.URL = "https://x/" },
			reason: ReasonNoFilename,
		},
		{
			name:   "unregistered_extension",
			sent:   func(ev *SentEvent) { ev.URL = "https://x/a.xyz" },
			reason: ReasonExtension,
		},
		{
			name:   "origin_blacklisted",
			policy: func(p *config.Policy) { p.BlacklistedURLs = []string{"*://origin.test/*"} },
			sent:   func(ev *SentEvent) { ev.OriginURL = "https://origin.test/page" },
			reason: ReasonBlacklisted,
		},
		{
			name:   "link_blacklisted_from_clean_page",
			policy: func(p *config.Policy) { p.BlacklistedURLs = []string{"*://x/*"} },
			sent: func(ev *SentEvent) {
				ev.OriginURL = "https://y/list"
				ev.DocumentURL = "https://y/list"
			},
			reason: ReasonBlacklisted,
		},
		{
			name:   "document_blacklisted",
			policy: func(p *config.Policy) { p.BlacklistedURLs = []string{"*://doc.test/*"} },
			sent:   func(ev *SentEvent) { ev.DocumentURL = "https://doc.test/list" },
			reason: ReasonBlacklisted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.policy)
			d := &fakeDisposer{canBlock: true}
			sent := zipRequest("1", "https://x/a.zip")
			if tt.sent != nil {
				tt.sent(&sent)
			}
			resp := zipResponse("1")
			if tt.resp != nil {
				tt.resp(&resp)
			}

			h.engine.OnSent(sent)
			if got := h.engine.OnHeadersReceived(context.Background(), resp, d); got != DispositionPass {
				t.Fatalf("disposition = %v; want pass", got)
			}
			if n := len(h.handoff.submitted()); n != 0 {
				t.Fatalf("submitted %d items; want none", n)
			}
			if passes, cancels := d.counts(); passes != 1 || cancels != 0 {
				t.Fatalf("passes=%d cancels=%d; want 1/0", passes, cancels)
			}
			recs := h.recorder.records
			if len(recs) != 1 || recs[0].Reason != tt.reason {
				t.Fatalf("records = %+v; want reason %q", recs, tt.reason)
			}
		})
	}
}

func TestStatusOutsideSuccessRangeAlwaysPasses(t *testing.T) {
	for _, status := range []int{0, 100, 199, 300, 301, 304, 404, 500, 599} {
		h := newHarness(t, nil)
		d := &fakeDisposer{canBlock: true}
		h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
		resp := zipResponse("1")
		resp.Status = status
		if got := h.engine.OnHeadersReceived(context.Background(), resp, d); got != DispositionPass {
			t.Fatalf("status %d: disposition = %v; want pass", status, got)
		}
		if n := len(h.handoff.submitted()); n != 0 {
			t.Fatalf("status %d: submitted %d items", status, n)
		}
	}
}

func TestUntrackedResponsePasses(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("ghost"), d); got != DispositionPass {
		t.Fatalf("disposition = %v; want pass", got)
	}
	if n := len(h.handoff.submitted()); n != 0 {
		t.Fatalf("untracked response was submitted")
	}
}

func TestHandoffOutcomes(t *testing.T) {
	errTimeout := errors.New("timeout")
	tests := []struct {
		name      string
		allowPass bool
		ok        bool
		err       error
		want      Disposition
		reason    string
	}{
		{name: "accepted", allowPass: true, ok: true, want: DispositionCancel, reason: ReasonAccepted},
		{name: "rejected", allowPass: true, ok: false, want: DispositionPass, reason: ReasonRejected},
		{name: "rejected_fail_closed", allowPass: false, ok: false, want: DispositionPass, reason: ReasonRejected},
		{name: "no_response_pass", allowPass: true, err: errTimeout, want: DispositionPass, reason: ReasonUnreachable},
		{name: "no_response_fail_closed", allowPass: false, err: errTimeout, want: DispositionCancel, reason: ReasonAssumed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(p *config.Policy) { p.AllowPassOnNoResponse = tt.allowPass })
			h.handoff.ok = tt.ok
			h.handoff.err = tt.err
			d := &fakeDisposer{canBlock: true}

			h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
			if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != tt.want {
				t.Fatalf("disposition = %v; want %v", got, tt.want)
			}
			if recs := h.recorder.records; len(recs) != 1 || recs[0].Reason != tt.reason {
				t.Fatalf("records = %+v; want reason %q", recs, tt.reason)
			}
		})
	}
}

func TestShortcutHeldSkipsCapture(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}
	h.engine.Keys().Set("Control")

	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != DispositionPass {
		t.Fatalf("disposition = %v; want pass", got)
	}
	if n := len(h.handoff.submitted()); n != 0 {
		t.Fatalf("submitted %d items with shortcut held", n)
	}
	if key := h.engine.Keys().Load(); key != "" {
		t.Fatalf("key signal = %q after override; want cleared", key)
	}

	// The next download is captured again.
	h.engine.OnSent(zipRequest("2", "https://x/b.zip"))
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("2"), d); got != DispositionCancel {
		t.Fatalf("disposition = %v; want cancel", got)
	}
}

func TestOtherKeyDoesNotOverride(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}
	h.engine.Keys().Set("Shift")
	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != DispositionCancel {
		t.Fatalf("disposition = %v; want cancel", got)
	}
	if key := h.engine.Keys().Load(); key != "Shift" {
		t.Fatalf("unrelated key was consumed")
	}
}

func TestEmptyShortcutNeverMatches(t *testing.T) {
	h := newHarness(t, func(p *config.Policy) { p.Shortcut = "" })
	d := &fakeDisposer{canBlock: true}
	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != DispositionCancel {
		t.Fatalf("disposition = %v; want cancel", got)
	}
}

func TestGraceWindowWhenHostCannotBlock(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: false}

	sent := zipRequest("1", "https://x/a.zip")
	h.engine.OnSent(sent)
	h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d)

	if _, ok := h.store.FindHeldByURL(sent.URL); !ok {
		t.Fatalf("held response released before the grace window")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.store.FindHeldByURL(sent.URL); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("held response never released")
}

func TestPassedResponseReleasedImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.handoff.ok = false
	d := &fakeDisposer{canBlock: false}
	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d)
	if _, ok := h.store.TakeResponse("1"); ok {
		t.Fatalf("passed response must not wait for the grace window")
	}
}

func TestRedeliveryIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}
	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d)
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != DispositionPass {
		t.Fatalf("re-delivered disposition = %v; want pass", got)
	}
	if n := len(h.handoff.submitted()); n != 1 {
		t.Fatalf("submitted %d items; want exactly 1", n)
	}
	if recs := h.recorder.records; len(recs) != 1 {
		t.Fatalf("recorded %d decisions; want 1", len(recs))
	}
}

func TestRedirectStartsFreshAttempt(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}

	h.engine.OnSent(zipRequest("1", "https://x/go"))
	redirect := zipResponse("1")
	redirect.Status = 302
	if got := h.engine.OnHeadersReceived(context.Background(), redirect, d); got != DispositionPass {
		t.Fatalf("redirect disposition = %v; want pass", got)
	}

	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != DispositionCancel {
		t.Fatalf("final hop disposition = %v; want cancel", got)
	}
}

func TestFreshTabClosedAfterCapture(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}
	h.engine.OnTabCreated(TabCreatedEvent{TabID: "5", URL: "https://x/a.zip"})

	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d)

	if len(h.closer.closed) != 1 || h.closer.closed[0] != "5" {
		t.Fatalf("closed tabs = %v; want [5]", h.closer.closed)
	}
}

func TestTabLeftOpen(t *testing.T) {
	tests := []struct {
		name   string
		policy func(p *config.Policy)
		setup  func(e *Engine)
		ok     bool
	}{
		{
			name:   "close_disabled",
			policy: func(p *config.Policy) { p.CloseNewTabIfCaptured = false },
			setup:  func(e *Engine) { e.OnTabCreated(TabCreatedEvent{TabID: "5", URL: "about:blank"}) },
			ok:     true,
		},
		{
			name: "navigated_tab",
			setup: func(e *Engine) {
				e.OnTabCreated(TabCreatedEvent{TabID: "5", URL: "about:blank"})
				e.OnTabUpdated(TabUpdatedEvent{TabID: "5", URL: "https://site/list"})
			},
			ok: true,
		},
		{
			name:  "rejected",
			setup: func(e *Engine) { e.OnTabCreated(TabCreatedEvent{TabID: "5", URL: "about:blank"}) },
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.policy)
			h.handoff.ok = tt.ok
			tt.setup(h.engine)
			h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
			h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), &fakeDisposer{canBlock: true})
			if len(h.closer.closed) != 0 {
				t.Fatalf("closed tabs = %v; want none", h.closer.closed)
			}
		})
	}
}

func TestTitleUpdateKeepsFreshFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.OnTabCreated(TabCreatedEvent{TabID: "5", URL: "https://x/a.zip"})
	h.engine.OnTabUpdated(TabUpdatedEvent{TabID: "5", URL: "https://x/a.zip", Title: "a.zip"})
	if !h.store.IsFreshTab("5") {
		t.Fatalf("title change cleared the fresh flag")
	}
	h.engine.OnTabRemoved(TabRemovedEvent{TabID: "5"})
	if h.store.IsFreshTab("5") {
		t.Fatalf("removed tab still fresh")
	}
}

func TestDocumentURLFromTabCache(t *testing.T) {
	h := newHarness(t, func(p *config.Policy) { p.BlacklistedURLs = []string{"*://forum.test/*"} })
	d := &fakeDisposer{canBlock: true}
	h.engine.OnTabCreated(TabCreatedEvent{TabID: "5"})
	h.engine.OnTabUpdated(TabUpdatedEvent{TabID: "5", URL: "https://forum.test/thread"})

	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d); got != DispositionPass {
		t.Fatalf("disposition = %v; want pass via tab document URL", got)
	}
}

func TestDownloadPageFilled(t *testing.T) {
	h := newHarness(t, nil)
	sent := zipRequest("1", "https://x/a.zip")
	sent.DocumentURL = "https://x/downloads"
	h.engine.OnSent(sent)
	h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), &fakeDisposer{canBlock: true})

	items := h.handoff.submitted()
	if len(items) != 1 || items[0].DownloadPage == nil || *items[0].DownloadPage != "https://x/downloads" {
		t.Fatalf("items = %+v; want downloadPage set", items)
	}
}

func TestConcurrentIDsDoNotBlockEachOther(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.handoff.gate = map[string]chan struct{}{"https://x/slow.zip": gate}
	d := &fakeDisposer{canBlock: true}

	h.engine.OnSent(zipRequest("A", "https://x/slow.zip"))
	h.engine.OnSent(zipRequest("B", "https://x/fast.zip"))

	done := make(chan Disposition, 1)
	go func() {
		done <- h.engine.OnHeadersReceived(context.Background(), zipResponse("A"), d)
	}()

	// B resolves while A is still waiting on the hand-off.
	if got := h.engine.OnHeadersReceived(context.Background(), zipResponse("B"), d); got != DispositionCancel {
		t.Fatalf("B disposition = %v; want cancel", got)
	}
	select {
	case <-done:
		t.Fatalf("A resolved before its hand-off returned")
	default:
	}

	close(gate)
	select {
	case got := <-done:
		if got != DispositionCancel {
			t.Fatalf("A disposition = %v; want cancel", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("A never resolved")
	}
}

func TestOrderIndependenceAcrossIDs(t *testing.T) {
	run := func(order []string) map[string]Disposition {
		h := newHarness(t, nil)
		d := &fakeDisposer{canBlock: true}
		out := make(map[string]Disposition)
		for _, step := range order {
			switch step {
			case "A.sent":
				h.engine.OnSent(zipRequest("A", "https://x/a.zip"))
			case "B.sent":
				sent := zipRequest("B", "https://x/page")
				h.engine.OnSent(sent)
			case "A.headers":
				out["A"] = h.engine.OnHeadersReceived(context.Background(), zipResponse("A"), d)
			case "B.headers":
				resp := zipResponse("B")
				resp.Headers[0].Value = "text/html"
				out["B"] = h.engine.OnHeadersReceived(context.Background(), resp, d)
			}
		}
		return out
	}

	serial := run([]string{"A.sent", "A.headers", "B.sent", "B.headers"})
	interleaved := run([]string{"B.sent", "A.sent", "B.headers", "A.headers"})
	for _, id := range []string{"A", "B"} {
		if serial[id] != interleaved[id] {
			t.Fatalf("%s: serial=%v interleaved=%v", id, serial[id], interleaved[id])
		}
	}
	if serial["A"] != DispositionCancel || serial["B"] != DispositionPass {
		t.Fatalf("dispositions = %v", serial)
	}
}

func TestStatsCounters(t *testing.T) {
	h := newHarness(t, nil)
	d := &fakeDisposer{canBlock: true}
	h.engine.OnSent(zipRequest("1", "https://x/a.zip"))
	h.engine.OnHeadersReceived(context.Background(), zipResponse("1"), d)
	h.engine.OnErrored(ErroredEvent{ID: "1", Reason: "net::ERR_ABORTED"})

	s := h.engine.Stats()
	if s.Sent != 1 || s.Observed != 1 || s.Submitted != 1 || s.Accepted != 1 || s.Cancelled != 1 || s.Errored != 1 {
		t.Fatalf("stats = %+v", s)
	}
}
