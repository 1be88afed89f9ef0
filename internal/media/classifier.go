// Package media classifies completed traffic as capturable media.
package media

import (
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/linkgrabber/internal/types"
	"github.com/google/uuid"
)

// ClassifyHLS packages a playlist manifest as an HLS media item. Callers only
// pass URLs that already matched IsHLSManifestURL, so no headers are checked.
func ClassifyHLS(rawURL string, reqHeaders, respHeaders types.Headers) types.MediaItem {
	return newItem(types.MediaHLS, rawURL, reqHeaders, respHeaders)
}

// ClassifyDirectMedia reports a progressive audio/video stream.
func ClassifyDirectMedia(rawURL string, reqHeaders, respHeaders types.Headers) (types.MediaItem, bool) {
	ct := strings.ToLower(respHeaders.ContentType())
	if ct == "" {
		return types.MediaItem{}, false
	}
	for _, prefix := range []string{"video", "audio"} {
		if strings.HasPrefix(ct, prefix) {
			return newItem(types.MediaHTTP, rawURL, reqHeaders, respHeaders), true
		}
	}
	return types.MediaItem{}, false
}

// IsHLSManifestURL matches http(s) URLs whose path ends in .m3u8, with or
// without a query string.
func IsHLSManifestURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

func newItem(mediaType, rawURL string, reqHeaders, respHeaders types.Headers) types.MediaItem {
	return types.MediaItem{
		ID:              uuid.NewString(),
		Type:            "media",
		MediaType:       mediaType,
		URL:             rawURL,
		RequestHeaders:  reqHeaders.Map(),
		ResponseHeaders: respHeaders.Map(),
		DetectedAt:      time.Now().UTC(),
	}
}
