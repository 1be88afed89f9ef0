package types

import "time"

// FrameKind classifies what loaded a request.
type FrameKind string

const (
	FrameMain  FrameKind = "main_frame"
	FrameSub   FrameKind = "sub_frame"
	FrameMedia FrameKind = "media"
	FrameOther FrameKind = "other"
)

// IsDocument reports whether the request is a top-level or nested document load.
func (k FrameKind) IsDocument() bool {
	return k == FrameMain || k == FrameSub
}

// ResourceKind is the resource classification attached to a completed request.
type ResourceKind string

const (
	// ResourceMedia is a progressive fetch issued by a media element.
	ResourceMedia ResourceKind = "media"
	// ResourceHLS is an XHR/fetch whose URL matched the playlist manifest filter.
	ResourceHLS   ResourceKind = "hls"
	ResourceOther ResourceKind = "other"
)

// TabID identifies a browser tab. With CDP this is the page target ID.
type TabID string

// PendingRequest is an in-flight request observed at send time.
// It is never mutated after it is tracked.
type PendingRequest struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	Headers     Headers   `json:"headers,omitempty"`
	OriginURL   string    `json:"origin_url,omitempty"`
	DocumentURL string    `json:"document_url,omitempty"`
	TabID       TabID     `json:"tab_id,omitempty"`
	FrameKind   FrameKind `json:"frame_kind"`
	Timestamp   time.Time `json:"timestamp"`
}

// HeldResponse is response metadata held while a disposition is decided.
type HeldResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url,omitempty"`
	Status    int       `json:"status"`
	Headers   Headers   `json:"headers,omitempty"`
	FrameKind FrameKind `json:"frame_kind"`
	Timestamp time.Time `json:"timestamp"`
}
