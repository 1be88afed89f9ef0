package intercept

import "github.com/dgnsrekt/linkgrabber/internal/types"

// SentEvent is delivered when a request leaves the browser.
type SentEvent struct {
	ID          string
	URL         string
	Method      string
	Headers     types.Headers
	OriginURL   string
	DocumentURL string
	TabID       types.TabID
	FrameKind   types.FrameKind
}

// HeadersReceivedEvent carries response metadata while the body is held back.
// HostRef is the host's own handle for the paused response, if any.
type HeadersReceivedEvent struct {
	ID      string
	URL     string
	Status  int
	Headers types.Headers
	HostRef string
}

// CompletedEvent marks a finished transfer. Headers are the response headers.
type CompletedEvent struct {
	ID           string
	URL          string
	ResourceKind types.ResourceKind
	Status       int
	Headers      types.Headers
}

type ErroredEvent struct {
	ID     string
	Reason string
}

type TabCreatedEvent struct {
	TabID types.TabID
	URL   string
	Title string
}

type TabUpdatedEvent struct {
	TabID types.TabID
	URL   string
	Title string
}

type TabRemovedEvent struct {
	TabID types.TabID
}
