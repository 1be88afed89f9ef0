package intercept

import "sync/atomic"

type counters struct {
	sent          atomic.Int64
	observed      atomic.Int64
	submitted     atomic.Int64
	accepted      atomic.Int64
	rejected      atomic.Int64
	handoffErrors atomic.Int64
	cancelled     atomic.Int64
	passed        atomic.Int64
	mediaReported atomic.Int64
	completed     atomic.Int64
	errored       atomic.Int64
}

// Stats is a snapshot of the engine counters since start.
type Stats struct {
	Sent          int64 `json:"sent"`
	Observed      int64 `json:"observed"`
	Submitted     int64 `json:"submitted"`
	Accepted      int64 `json:"accepted"`
	Rejected      int64 `json:"rejected"`
	HandoffErrors int64 `json:"handoff_errors"`
	Cancelled     int64 `json:"cancelled"`
	Passed        int64 `json:"passed"`
	MediaReported int64 `json:"media_reported"`
	Completed     int64 `json:"completed"`
	Errored       int64 `json:"errored"`
}

func (e *Engine) Stats() Stats {
	c := &e.counters
	return Stats{
		Sent:          c.sent.Load(),
		Observed:      c.observed.Load(),
		Submitted:     c.submitted.Load(),
		Accepted:      c.accepted.Load(),
		Rejected:      c.rejected.Load(),
		HandoffErrors: c.handoffErrors.Load(),
		Cancelled:     c.cancelled.Load(),
		Passed:        c.passed.Load(),
		MediaReported: c.mediaReported.Load(),
		Completed:     c.completed.Load(),
		Errored:       c.errored.Load(),
	}
}
