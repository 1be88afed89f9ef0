// Package capture correlates request lifecycle events by their correlation id.
package capture

import (
	"sync"
	"time"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

const (
	// GraceWindow keeps a held response findable after its disposition when
	// the host cannot cancel synchronously.
	GraceWindow = 5 * time.Second

	staleAfter    = 5 * time.Minute
	sweepInterval = 1 * time.Minute
)

type heldEntry struct {
	resp  *types.HeldResponse
	timer *time.Timer
}

// Store holds per-request state across the request lifecycle. Each map has its
// own lock so operations on one id never wait on another map.
type Store struct {
	pending   map[string]*types.PendingRequest
	active    map[string]time.Time
	pendingMu sync.RWMutex

	held   map[string]*heldEntry
	heldMu sync.Mutex

	disposed   map[string]time.Time
	disposedMu sync.Mutex

	tabs   map[types.TabID]types.TabRecord
	tabsMu sync.RWMutex

	fresh   map[types.TabID]string
	freshMu sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

// Counts is a point-in-time size of each map.
type Counts struct {
	Pending   int `json:"pending"`
	Held      int `json:"held"`
	Disposed  int `json:"disposed"`
	Tabs      int `json:"tabs"`
	FreshTabs int `json:"fresh_tabs"`
}

func NewStore() *Store {
	s := &Store{
		pending:  make(map[string]*types.PendingRequest),
		active:   make(map[string]time.Time),
		held:     make(map[string]*heldEntry),
		disposed: make(map[string]time.Time),
		tabs:     make(map[types.TabID]types.TabRecord),
		fresh:    make(map[types.TabID]string),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the stale sweeper and any pending release timers.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.heldMu.Lock()
		for _, e := range s.held {
			if e.timer != nil {
				e.timer.Stop()
			}
		}
		s.heldMu.Unlock()
	})
}

func (s *Store) Track(req *types.PendingRequest) {
	if req == nil || req.ID == "" {
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	s.pendingMu.Lock()
	s.pending[req.ID] = req
	s.active[req.ID] = req.Timestamp
	s.pendingMu.Unlock()
}

// Touch records activity on a tracked request so a long transfer is not
// swept before its terminal event. Untracked ids are ignored.
func (s *Store) Touch(id string) {
	s.pendingMu.Lock()
	if _, ok := s.pending[id]; ok {
		s.active[id] = time.Now()
	}
	s.pendingMu.Unlock()
}

// Untrack removes and returns the pending request. The boolean is false when
// the id was never tracked or was already removed.
func (s *Store) Untrack(id string) (*types.PendingRequest, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	req, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		delete(s.active, id)
	}
	return req, ok
}

func (s *Store) Get(id string) (*types.PendingRequest, bool) {
	s.pendingMu.RLock()
	defer s.pendingMu.RUnlock()
	req, ok := s.pending[id]
	return req, ok
}

// HoldResponse records response metadata for id. A previous hold for the same
// id, and its scheduled release, are replaced.
func (s *Store) HoldResponse(resp *types.HeldResponse) {
	if resp == nil || resp.ID == "" {
		return
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}
	s.heldMu.Lock()
	defer s.heldMu.Unlock()
	if prev, ok := s.held[resp.ID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	s.held[resp.ID] = &heldEntry{resp: resp}
}

// TakeResponse reads the held response without removing it.
func (s *Store) TakeResponse(id string) (*types.HeldResponse, bool) {
	s.heldMu.Lock()
	defer s.heldMu.Unlock()
	e, ok := s.held[id]
	if !ok {
		return nil, false
	}
	return e.resp, true
}

// ReleaseResponse removes the held response now when delay <= 0, otherwise
// after delay. An immediate release cancels a scheduled one.
func (s *Store) ReleaseResponse(id string, delay time.Duration) {
	s.heldMu.Lock()
	defer s.heldMu.Unlock()
	e, ok := s.held[id]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if delay <= 0 {
		delete(s.held, id)
		return
	}
	e.timer = time.AfterFunc(delay, func() {
		s.heldMu.Lock()
		defer s.heldMu.Unlock()
		// Only drop the entry this timer was scheduled for.
		if cur, ok := s.held[id]; ok && cur == e {
			delete(s.held, id)
		}
	})
}

// FindHeldByURL returns the most recently held response for rawURL.
func (s *Store) FindHeldByURL(rawURL string) (*types.HeldResponse, bool) {
	s.heldMu.Lock()
	defer s.heldMu.Unlock()
	var found *types.HeldResponse
	for _, e := range s.held {
		if e.resp.URL != rawURL {
			continue
		}
		if found == nil || e.resp.Timestamp.After(found.Timestamp) {
			found = e.resp
		}
	}
	return found, found != nil
}

// MarkDisposed records that a final disposition was emitted for id.
func (s *Store) MarkDisposed(id string) {
	s.disposedMu.Lock()
	s.disposed[id] = time.Now()
	s.disposedMu.Unlock()
}

func (s *Store) IsDisposed(id string) bool {
	s.disposedMu.Lock()
	defer s.disposedMu.Unlock()
	_, ok := s.disposed[id]
	return ok
}

// ForgetDisposed drops the disposition marker once the id reached a terminal
// event.
func (s *Store) ForgetDisposed(id string) {
	s.disposedMu.Lock()
	delete(s.disposed, id)
	s.disposedMu.Unlock()
}

func (s *Store) Counts() Counts {
	var c Counts
	s.pendingMu.RLock()
	c.Pending = len(s.pending)
	s.pendingMu.RUnlock()
	s.heldMu.Lock()
	c.Held = len(s.held)
	s.heldMu.Unlock()
	s.disposedMu.Lock()
	c.Disposed = len(s.disposed)
	s.disposedMu.Unlock()
	s.tabsMu.RLock()
	c.Tabs = len(s.tabs)
	s.tabsMu.RUnlock()
	s.freshMu.RLock()
	c.FreshTabs = len(s.fresh)
	s.freshMu.RUnlock()
	return c
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupStale(time.Now().Add(-staleAfter))
		case <-s.done:
			return
		}
	}
}

// cleanupStale drops entries whose terminal event the host never delivered.
// Pending requests count from their last activity, not from Sent.
func (s *Store) cleanupStale(threshold time.Time) {
	s.pendingMu.Lock()
	for id := range s.pending {
		if s.active[id].Before(threshold) {
			delete(s.pending, id)
			delete(s.active, id)
		}
	}
	s.pendingMu.Unlock()

	s.heldMu.Lock()
	for id, e := range s.held {
		if e.resp.Timestamp.Before(threshold) {
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(s.held, id)
		}
	}
	s.heldMu.Unlock()

	s.disposedMu.Lock()
	for id, at := range s.disposed {
		if at.Before(threshold) {
			delete(s.disposed, id)
		}
	}
	s.disposedMu.Unlock()
}
