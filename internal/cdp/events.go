package cdp

import (
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/linkgrabber/internal/intercept"
	"github.com/dgnsrekt/linkgrabber/internal/media"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// frameKindFor classifies a request by its resource type. The main frame of a
// page target shares the target's ID.
func frameKindFor(rt network.ResourceType, frameID string, targetID target.ID) types.FrameKind {
	switch rt {
	case network.ResourceTypeDocument:
		if frameID == string(targetID) {
			return types.FrameMain
		}
		return types.FrameSub
	case network.ResourceTypeMedia:
		return types.FrameMedia
	default:
		return types.FrameOther
	}
}

func resourceKindFor(rt network.ResourceType, url string) types.ResourceKind {
	switch rt {
	case network.ResourceTypeMedia:
		return types.ResourceMedia
	case network.ResourceTypeXHR, network.ResourceTypeFetch:
		if media.IsHLSManifestURL(url) {
			return types.ResourceHLS
		}
	}
	return types.ResourceOther
}

func requestURL(r *network.Request) string {
	if r == nil {
		return ""
	}
	return r.URL + r.URLFragment
}

func sentEvent(tabID target.ID, e *network.EventRequestWillBeSent) intercept.SentEvent {
	ev := intercept.SentEvent{
		ID:        string(e.RequestID),
		URL:       requestURL(e.Request),
		TabID:     types.TabID(tabID),
		FrameKind: frameKindFor(e.Type, string(e.FrameID), tabID),
	}
	if e.Request != nil {
		ev.Method = e.Request.Method
		ev.Headers = types.HeadersFromMap(e.Request.Headers)
	}
	if e.Initiator != nil && e.Initiator.URL != "" {
		ev.OriginURL = e.Initiator.URL
	} else {
		ev.OriginURL = ev.Headers.Get("Referer")
	}
	// A main-frame load reports its own URL as the document; the page the
	// user came from is the tab's current document.
	if ev.FrameKind != types.FrameMain {
		ev.DocumentURL = e.DocumentURL
	}
	return ev
}

// headersReceivedEvent maps a response-stage pause. The network ID ties it to
// the request tracked at send time.
func headersReceivedEvent(e *fetch.EventRequestPaused) intercept.HeadersReceivedEvent {
	ev := intercept.HeadersReceivedEvent{
		ID:      string(e.NetworkID),
		URL:     requestURL(e.Request),
		Status:  int(e.ResponseStatusCode),
		HostRef: string(e.RequestID),
	}
	if ev.ID == "" {
		ev.ID = string(e.RequestID)
	}
	for _, h := range e.ResponseHeaders {
		if h == nil {
			continue
		}
		ev.Headers = append(ev.Headers, types.Header{Name: h.Name, Value: h.Value})
	}
	return ev
}

// passiveHeadersEvent maps a document response seen without interception.
func passiveHeadersEvent(e *network.EventResponseReceived) intercept.HeadersReceivedEvent {
	ev := intercept.HeadersReceivedEvent{ID: string(e.RequestID)}
	if e.Response != nil {
		ev.URL = e.Response.URL
		ev.Status = int(e.Response.Status)
		ev.Headers = types.HeadersFromMap(e.Response.Headers)
	}
	return ev
}

// responseMeta is what LoadingFinished needs from the earlier
// ResponseReceived.
type responseMeta struct {
	url     string
	kind    types.ResourceKind
	status  int
	headers types.Headers
}

func responseMetaFor(e *network.EventResponseReceived) responseMeta {
	m := responseMeta{}
	if e.Response != nil {
		m.url = e.Response.URL
		m.status = int(e.Response.Status)
		m.headers = types.HeadersFromMap(e.Response.Headers)
	}
	m.kind = resourceKindFor(e.Type, m.url)
	return m
}

func completedEvent(id network.RequestID, m responseMeta) intercept.CompletedEvent {
	return intercept.CompletedEvent{
		ID:           string(id),
		URL:          m.url,
		ResourceKind: m.kind,
		Status:       m.status,
		Headers:      m.headers,
	}
}

func tabEvent(info *target.Info) (types.TabID, string, string, bool) {
	if info == nil || info.Type != "page" {
		return "", "", "", false
	}
	return types.TabID(info.TargetID), info.URL, info.Title, true
}
