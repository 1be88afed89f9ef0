package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Holder publishes the current policy snapshot. Readers never block and never
// see a partially applied update.
type Holder struct {
	path    string
	current atomic.Pointer[Policy]
	writeMu sync.Mutex
}

// NewHolder loads the policy at path. Boot fails when no snapshot can be
// produced.
func NewHolder(path string) (*Holder, error) {
	p, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	return NewStaticHolder(path, p)
}

// NewStaticHolder wraps an already loaded policy.
func NewStaticHolder(path string, p *Policy) (*Holder, error) {
	if p == nil {
		return nil, errors.New("policy: no snapshot")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	h := &Holder{path: path}
	h.current.Store(p)
	return h, nil
}

// Current returns the latest snapshot. Callers must not modify it.
func (h *Holder) Current() *Policy {
	return h.current.Load()
}

func (h *Holder) Path() string {
	return h.path
}

// Update validates p and swaps it in. When persist is set and the holder has a
// file path the snapshot is written back first.
func (h *Holder) Update(p *Policy, persist bool) (*Policy, error) {
	if p == nil {
		return nil, errors.New("policy: no snapshot")
	}
	next := p.Clone()
	if err := next.Validate(); err != nil {
		return nil, err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if persist && h.path != "" {
		if err := SavePolicy(h.path, next); err != nil {
			return nil, err
		}
	}
	h.current.Store(next)
	slog.Info("policy updated", "auto_capture", next.AutoCaptureLinks, "popup", next.PopupEnabled,
		"extensions", len(next.RegisteredFileTypes), "blacklist", len(next.BlacklistedURLs))
	return next, nil
}

// Reload re-reads the policy file. On failure the previous snapshot stays in
// place and the error is returned to the caller only.
func (h *Holder) Reload() (*Policy, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	p, err := LoadPolicy(h.path)
	if err != nil {
		slog.Warn("policy reload failed, keeping previous snapshot", "path", h.path, "error", err)
		return h.current.Load(), fmt.Errorf("reload: %w", err)
	}
	h.current.Store(p)
	slog.Info("policy reloaded", "path", h.path)
	return p, nil
}
