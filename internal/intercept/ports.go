package intercept

import (
	"context"

	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// Disposition is the final outcome for a held response.
type Disposition int

const (
	DispositionPass Disposition = iota
	DispositionCancel
)

func (d Disposition) String() string {
	if d == DispositionCancel {
		return "cancel"
	}
	return "pass"
}

// Disposer resolves a held response. One implementation exists per host
// environment. CanBlock reports whether Cancel stops the transfer before the
// browser acts on it.
type Disposer interface {
	Pass(ctx context.Context, ev HeadersReceivedEvent) error
	Cancel(ctx context.Context, ev HeadersReceivedEvent) error
	CanBlock() bool
}

type TabCloser interface {
	CloseTab(ctx context.Context, tabID types.TabID) error
}

// Handoff offers items to the external download manager. (false, nil) is an
// explicit rejection; an error means the manager did not answer.
type Handoff interface {
	Submit(ctx context.Context, items []types.DirectDownloadItem) (bool, error)
}

type MediaSink interface {
	OnMediaDetected(tabID types.TabID, item types.MediaItem)
}

type PolicySource interface {
	Current() *config.Policy
}

// Recorder receives one record per decision.
type Recorder interface {
	Write(record any) error
}
