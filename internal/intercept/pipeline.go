package intercept

import (
	"net/http"

	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/media"
	"github.com/dgnsrekt/linkgrabber/internal/rules"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// Reasons recorded with each decision.
const (
	ReasonAccepted       = "accepted"
	ReasonAssumed        = "handoff_no_response"
	ReasonRejected       = "handoff_rejected"
	ReasonUnreachable    = "handoff_no_response_pass"
	ReasonUntracked      = "untracked"
	ReasonNotDocument    = "not_document"
	ReasonMethod         = "method_not_get"
	ReasonAutoCaptureOff = "auto_capture_disabled"
	ReasonStatus         = "status_not_2xx"
	ReasonPageComponent  = "page_component"
	ReasonBlacklisted    = "blacklisted"
	ReasonBelowMinimum   = "below_minimum_size"
	ReasonShortcutHeld   = "shortcut_held"
	ReasonNoFilename     = "no_filename"
	ReasonExtension      = "extension_not_registered"

	ReasonPopupOff   = "popup_disabled"
	ReasonMediaDeny  = "media_host_denied"
	ReasonNotMedia   = "not_media"
	ReasonReported   = "reported"
	ReasonRedelivery = "already_disposed"
)

// downloadInput is everything the direct download decision may look at.
type downloadInput struct {
	req         *types.PendingRequest
	status      int
	headers     types.Headers
	documentURL string
	heldKey     string
}

// evaluateDownload runs the direct download checks in order. It returns the
// item to hand off, or the reason of the first failing check.
func evaluateDownload(in downloadInput, p *config.Policy) (types.DirectDownloadItem, string, bool) {
	req := in.req
	if !req.FrameKind.IsDocument() {
		return types.DirectDownloadItem{}, ReasonNotDocument, false
	}
	if req.Method != http.MethodGet {
		return types.DirectDownloadItem{}, ReasonMethod, false
	}
	if !p.AutoCaptureLinks {
		return types.DirectDownloadItem{}, ReasonAutoCaptureOff, false
	}
	if in.status < 200 || in.status > 299 {
		return types.DirectDownloadItem{}, ReasonStatus, false
	}
	if rules.IsRenderablePageComponent(in.headers) {
		return types.DirectDownloadItem{}, ReasonPageComponent, false
	}
	if anyBlacklisted(p.BlacklistedURLs, req.URL, req.OriginURL, in.documentURL) {
		return types.DirectDownloadItem{}, ReasonBlacklisted, false
	}
	n, known := in.headers.ContentLength()
	if !rules.MeetsMinimumSize(n, known, p.CaptureFileSizeMinimumKB) {
		return types.DirectDownloadItem{}, ReasonBelowMinimum, false
	}
	if shortcutHeld(in.heldKey, p.Shortcut) {
		return types.DirectDownloadItem{}, ReasonShortcutHeld, false
	}
	name, ok := rules.DeriveFilename(req.URL, in.headers)
	if !ok {
		return types.DirectDownloadItem{}, ReasonNoFilename, false
	}
	if !rules.IsRegisteredExtension(rules.FileExtension(name), p.RegisteredFileTypes) {
		return types.DirectDownloadItem{}, ReasonExtension, false
	}
	return newDownloadItem(req, in.documentURL, name), ReasonAccepted, true
}

// newDownloadItem is built from the originating request, never the response.
func newDownloadItem(req *types.PendingRequest, documentURL, name string) types.DirectDownloadItem {
	item := types.DirectDownloadItem{
		Link:          req.URL,
		Headers:       req.Headers.Map(),
		Type:          "http",
		SuggestedName: &name,
	}
	if documentURL != "" {
		item.DownloadPage = &documentURL
	}
	return item
}

// shortcutHeld compares key names exactly. An empty shortcut never matches.
func shortcutHeld(held, shortcut string) bool {
	return shortcut != "" && held == shortcut
}

// anyBlacklisted checks the request URL and whatever page context is known.
// Empty URLs are skipped.
func anyBlacklisted(patterns []string, urls ...string) bool {
	for _, u := range urls {
		if u != "" && rules.IsBlacklisted(u, patterns) {
			return true
		}
	}
	return false
}

func anyMediaHostDenied(urls ...string) bool {
	for _, u := range urls {
		if u != "" && rules.IsMediaHostDenied(u) {
			return true
		}
	}
	return false
}

type mediaInput struct {
	req         *types.PendingRequest
	ev          CompletedEvent
	documentURL string
}

// evaluateMedia decides whether a completed request is a reportable media
// stream.
func evaluateMedia(in mediaInput, p *config.Policy) (types.MediaItem, string, bool) {
	if !p.PopupEnabled {
		return types.MediaItem{}, ReasonPopupOff, false
	}
	urls := []string{mediaURL(in), in.req.OriginURL, in.documentURL}
	if anyBlacklisted(p.BlacklistedURLs, urls...) {
		return types.MediaItem{}, ReasonBlacklisted, false
	}
	if anyMediaHostDenied(urls...) {
		return types.MediaItem{}, ReasonMediaDeny, false
	}
	n, known := in.ev.Headers.ContentLength()
	if !rules.MeetsMinimumSize(n, known, p.CaptureFileSizeMinimumKB) {
		return types.MediaItem{}, ReasonBelowMinimum, false
	}

	var (
		item types.MediaItem
		ok   bool
	)
	switch in.ev.ResourceKind {
	case types.ResourceMedia:
		item, ok = media.ClassifyDirectMedia(mediaURL(in), in.req.Headers, in.ev.Headers)
	case types.ResourceHLS:
		item, ok = media.ClassifyHLS(mediaURL(in), in.req.Headers, in.ev.Headers), true
	}
	if !ok {
		return types.MediaItem{}, ReasonNotMedia, false
	}
	item.TabID = in.req.TabID
	item.DocumentURL = in.documentURL
	return item, ReasonReported, true
}

func mediaURL(in mediaInput) string {
	if in.ev.URL != "" {
		return in.ev.URL
	}
	return in.req.URL
}
