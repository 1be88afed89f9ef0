package types

import "time"

// DirectDownloadItem is a file offered to the download manager.
// Field names follow the download manager's JSON contract.
type DirectDownloadItem struct {
	Link          string            `json:"link"`
	Headers       map[string]string `json:"headers"`
	DownloadPage  *string           `json:"downloadPage"`
	Description   *string           `json:"description"`
	Type          string            `json:"type"`
	SuggestedName *string           `json:"suggestedName"`
}

// Media types reported in MediaItem.MediaType.
const (
	MediaHTTP = "http"
	MediaHLS  = "hls"
)

// MediaItem is a capturable media stream detected on a tab.
type MediaItem struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	MediaType       string            `json:"mediaType"`
	URL             string            `json:"url"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	TabID           TabID             `json:"tabId,omitempty"`
	DocumentURL     string            `json:"documentUrl,omitempty"`
	DetectedAt      time.Time         `json:"detectedAt"`
}
