package capture

import (
	"testing"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

func TestResolveDocumentURL(t *testing.T) {
	s := newTestStore(t)
	s.UpsertTab(types.TabRecord{ID: "5", URL: "https://site/page", Title: "Page"})

	tests := []struct {
		name     string
		explicit string
		tab      types.TabID
		want     string
	}{
		{name: "explicit_wins", explicit: "https://doc", tab: "5", want: "https://doc"},
		{name: "tab_lookup", tab: "5", want: "https://site/page"},
		{name: "missing_tab", tab: "9", want: ""},
		{name: "no_tab", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ResolveDocumentURL(tt.explicit, tt.tab); got != tt.want {
				t.Fatalf("ResolveDocumentURL(%q, %q) = %q; want %q", tt.explicit, tt.tab, got, tt.want)
			}
		})
	}
}

func TestFreshTabs(t *testing.T) {
	s := newTestStore(t)
	s.UpsertTab(types.TabRecord{ID: "1", URL: "about:blank"})
	s.MarkFreshTab("1", "about:blank")

	if !s.IsFreshTab("1") {
		t.Fatalf("IsFreshTab(1) = false after MarkFreshTab")
	}
	tabs := s.Tabs()
	if len(tabs) != 1 || !tabs[0].Fresh {
		t.Fatalf("Tabs() = %+v; want one fresh tab", tabs)
	}

	s.ClearFreshTab("1")
	if s.IsFreshTab("1") {
		t.Fatalf("IsFreshTab(1) = true after ClearFreshTab")
	}

	s.MarkFreshTab("1", "about:blank")
	s.DropTab("1")
	if s.IsFreshTab("1") {
		t.Fatalf("DropTab must clear the fresh flag")
	}
	if _, ok := s.Tab("1"); ok {
		t.Fatalf("tab still cached after DropTab")
	}
}

func TestTabsOrdered(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []types.TabID{"c", "a", "b"} {
		s.UpsertTab(types.TabRecord{ID: id})
	}
	s.UpsertTab(types.TabRecord{})

	tabs := s.Tabs()
	if len(tabs) != 3 {
		t.Fatalf("len(Tabs()) = %d; want 3", len(tabs))
	}
	for i, want := range []types.TabID{"a", "b", "c"} {
		if tabs[i].ID != want {
			t.Fatalf("Tabs()[%d] = %q; want %q", i, tabs[i].ID, want)
		}
	}
}
