package relay

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// FeedMedia is the feed name media detections are published on.
const FeedMedia = "media"

const defaultRecentPerTab = 50

// MediaSink publishes media detections and keeps the most recent ones per
// tab. A URL already reported on a tab is not published again.
type MediaSink struct {
	broker *Broker
	limit  int

	mu     sync.Mutex
	recent map[types.TabID][]types.MediaItem
}

func NewMediaSink(broker *Broker, limit int) *MediaSink {
	if limit <= 0 {
		limit = defaultRecentPerTab
	}
	return &MediaSink{
		broker: broker,
		limit:  limit,
		recent: make(map[types.TabID][]types.MediaItem),
	}
}

func (s *MediaSink) OnMediaDetected(tabID types.TabID, item types.MediaItem) {
	s.mu.Lock()
	items := s.recent[tabID]
	for _, seen := range items {
		if seen.URL == item.URL {
			s.mu.Unlock()
			return
		}
	}
	items = append(items, item)
	if len(items) > s.limit {
		items = items[len(items)-s.limit:]
	}
	s.recent[tabID] = items
	s.mu.Unlock()

	payload, err := json.Marshal(item)
	if err != nil {
		slog.Warn("failed to encode media item", "id", item.ID, "error", err)
		return
	}
	s.broker.Publish(Event{Feed: FeedMedia, TabID: tabID, Payload: string(payload)})
}

// Recent returns the remembered items for tabID, or for every tab when tabID
// is empty, oldest first.
func (s *MediaSink) Recent(tabID types.TabID) []types.MediaItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tabID != "" {
		return append([]types.MediaItem(nil), s.recent[tabID]...)
	}
	var out []types.MediaItem
	for _, items := range s.recent {
		out = append(out, items...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}

// ForgetTab drops the remembered items of a closed tab.
func (s *MediaSink) ForgetTab(tabID types.TabID) {
	s.mu.Lock()
	delete(s.recent, tabID)
	s.mu.Unlock()
}
