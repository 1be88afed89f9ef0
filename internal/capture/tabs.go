package capture

import (
	"sort"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// UpsertTab stores the latest known document for a tab.
func (s *Store) UpsertTab(rec types.TabRecord) {
	if rec.ID == "" {
		return
	}
	s.tabsMu.Lock()
	s.tabs[rec.ID] = rec
	s.tabsMu.Unlock()
}

// DropTab forgets a tab and its fresh flag.
func (s *Store) DropTab(id types.TabID) {
	s.tabsMu.Lock()
	delete(s.tabs, id)
	s.tabsMu.Unlock()
	s.ClearFreshTab(id)
}

func (s *Store) Tab(id types.TabID) (types.TabRecord, bool) {
	s.tabsMu.RLock()
	defer s.tabsMu.RUnlock()
	rec, ok := s.tabs[id]
	return rec, ok
}

// ResolveDocumentURL returns explicit when set, otherwise the cached document
// URL of tabID. A missing tab resolves to "".
func (s *Store) ResolveDocumentURL(explicit string, tabID types.TabID) string {
	if explicit != "" {
		return explicit
	}
	if tabID == "" {
		return ""
	}
	s.tabsMu.RLock()
	defer s.tabsMu.RUnlock()
	return s.tabs[tabID].URL
}

func (s *Store) MarkFreshTab(id types.TabID, url string) {
	if id == "" {
		return
	}
	s.freshMu.Lock()
	s.fresh[id] = url
	s.freshMu.Unlock()
}

func (s *Store) ClearFreshTab(id types.TabID) {
	s.freshMu.Lock()
	delete(s.fresh, id)
	s.freshMu.Unlock()
}

func (s *Store) IsFreshTab(id types.TabID) bool {
	s.freshMu.RLock()
	defer s.freshMu.RUnlock()
	_, ok := s.fresh[id]
	return ok
}

// Tabs returns a snapshot of the tab cache ordered by id.
func (s *Store) Tabs() []types.TabRecord {
	s.tabsMu.RLock()
	out := make([]types.TabRecord, 0, len(s.tabs))
	for _, rec := range s.tabs {
		out = append(out, rec)
	}
	s.tabsMu.RUnlock()

	s.freshMu.RLock()
	for i := range out {
		_, out[i].Fresh = s.fresh[out[i].ID]
	}
	s.freshMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
