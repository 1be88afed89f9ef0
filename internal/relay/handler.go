package relay

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// filter limits a subscription by feed names (?feeds=a,b) and tab (?tab=id).
type filter struct {
	feeds map[string]bool
	tab   types.TabID
}

func parseFilter(r *http.Request) filter {
	var f filter
	q := r.URL.Query()
	if feeds := q.Get("feeds"); feeds != "" {
		f.feeds = make(map[string]bool)
		for _, name := range strings.Split(feeds, ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.feeds[name] = true
			}
		}
	}
	f.tab = types.TabID(strings.TrimSpace(q.Get("tab")))
	return f
}

func (f filter) accepts(evt Event) bool {
	if f.feeds != nil && !f.feeds[evt.Feed] {
		return false
	}
	return f.tab == "" || f.tab == evt.TabID
}

// SSEHandler streams broker events as server-sent events.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		f := parseFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !f.accepts(evt) {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Feed, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
