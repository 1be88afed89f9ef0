// Package controller backs the control API with the running engine, store
// and policy holder.
package controller

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/dgnsrekt/linkgrabber/internal/capture"
	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/intercept"
	"github.com/dgnsrekt/linkgrabber/internal/rules"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// Engine is the part of *intercept.Engine the API reads.
type Engine interface {
	Stats() intercept.Stats
	Keys() *intercept.KeySignal
}

type Handoff interface {
	Submit(ctx context.Context, items []types.DirectDownloadItem) (bool, error)
	Ping(ctx context.Context) error
}

// Browser reports on the host connection. It may be nil before attach.
type Browser interface {
	TabCount() int
	CanBlock() bool
}

type MediaFeed interface {
	Recent(tabID types.TabID) []types.MediaItem
}

type FeedStats interface {
	ClientCount() int
	Dropped() int64
}

// Options wires a Service. Engine, Store and Policy are required.
type Options struct {
	Engine  Engine
	Store   *capture.Store
	Policy  *config.Holder
	Handoff Handoff
	Browser Browser
	Media   MediaFeed
	Feed    FeedStats
}

// Service exposes engine state and policy management to the API.
type Service struct {
	engine  Engine
	store   *capture.Store
	policy  *config.Holder
	handoff Handoff
	browser Browser
	media   MediaFeed
	feed    FeedStats
}

func NewService(opts Options) *Service {
	return &Service{
		engine:  opts.Engine,
		store:   opts.Store,
		policy:  opts.Policy,
		handoff: opts.Handoff,
		browser: opts.Browser,
		media:   opts.Media,
		feed:    opts.Feed,
	}
}

type HealthResult struct {
	Status           string `json:"status"`
	HandoffReachable bool   `json:"handoff_reachable"`
	HandoffError     string `json:"handoff_error,omitempty"`
	AttachedTabs     int    `json:"attached_tabs"`
	CanBlock         bool   `json:"can_block"`
}

type StatsResult struct {
	Engine       intercept.Stats `json:"engine"`
	Store        capture.Counts  `json:"store"`
	FeedClients  int             `json:"feed_clients"`
	FeedDropped  int64           `json:"feed_dropped"`
	AttachedTabs int             `json:"attached_tabs"`
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &CodedError{Code: CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// Health never fails; an unreachable download manager is reported in the
// result.
func (s *Service) Health(ctx context.Context) HealthResult {
	out := HealthResult{Status: "ok"}
	if s.handoff != nil {
		if err := s.handoff.Ping(ctx); err != nil {
			out.HandoffError = err.Error()
		} else {
			out.HandoffReachable = true
		}
	}
	if s.browser != nil {
		out.AttachedTabs = s.browser.TabCount()
		out.CanBlock = s.browser.CanBlock()
	}
	return out
}

func (s *Service) GetPolicy(ctx context.Context) config.Policy {
	return *s.policy.Current().Clone()
}

// UpdatePolicy validates p before it reaches the holder so bad input and
// failed writes map to different codes.
func (s *Service) UpdatePolicy(ctx context.Context, p config.Policy, persist bool) (config.Policy, error) {
	next := p.Clone()
	if err := next.Validate(); err != nil {
		return config.Policy{}, newError(CodeValidation, err.Error(), nil)
	}
	applied, err := s.policy.Update(next, persist)
	if err != nil {
		return config.Policy{}, newError(CodePolicyPersist, "failed to save policy", err)
	}
	return *applied.Clone(), nil
}

func (s *Service) ReloadPolicy(ctx context.Context) (config.Policy, error) {
	if s.policy.Path() == "" {
		return config.Policy{}, newError(CodeValidation, "no policy file configured", nil)
	}
	p, err := s.policy.Reload()
	if err != nil {
		return config.Policy{}, newError(CodePolicyReload, "policy file could not be loaded, previous policy kept", err)
	}
	return *p.Clone(), nil
}

// SetKey records the modifier key held on the page. An empty key clears it.
func (s *Service) SetKey(ctx context.Context, key string) string {
	key = strings.TrimSpace(key)
	s.engine.Keys().Set(key)
	return key
}

func (s *Service) ListTabs(ctx context.Context) []types.TabRecord {
	return s.store.Tabs()
}

func (s *Service) GetTab(ctx context.Context, tabID string) (types.TabRecord, error) {
	if err := s.requireNonEmpty(tabID, "tab_id"); err != nil {
		return types.TabRecord{}, err
	}
	id := types.TabID(strings.TrimSpace(tabID))
	rec, ok := s.store.Tab(id)
	if !ok {
		return types.TabRecord{}, newError(CodeNotFound, "tab "+string(id)+" not found", nil)
	}
	rec.Fresh = s.store.IsFreshTab(id)
	return rec, nil
}

func (s *Service) Stats(ctx context.Context) StatsResult {
	out := StatsResult{
		Engine: s.engine.Stats(),
		Store:  s.store.Counts(),
	}
	if s.feed != nil {
		out.FeedClients = s.feed.ClientCount()
		out.FeedDropped = s.feed.Dropped()
	}
	if s.browser != nil {
		out.AttachedTabs = s.browser.TabCount()
	}
	return out
}

func (s *Service) RecentMedia(ctx context.Context, tabID string) []types.MediaItem {
	if s.media == nil {
		return nil
	}
	return s.media.Recent(types.TabID(strings.TrimSpace(tabID)))
}

// AddDownloads hands links to the download manager directly, bypassing the
// capture filters.
func (s *Service) AddDownloads(ctx context.Context, links []string, pageURL string) ([]types.DirectDownloadItem, error) {
	if s.handoff == nil {
		return nil, newError(CodeHandoffUnavailable, "download manager is not configured", nil)
	}
	if len(links) == 0 {
		return nil, newError(CodeValidation, "links is required", nil)
	}

	items := make([]types.DirectDownloadItem, 0, len(links))
	pageURL = strings.TrimSpace(pageURL)
	for _, link := range links {
		link = strings.TrimSpace(link)
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, newError(CodeValidation, "invalid link "+link, nil)
		}
		item := types.DirectDownloadItem{Link: link, Type: "http"}
		if name, ok := rules.DeriveFilename(link, nil); ok {
			item.SuggestedName = &name
		}
		if pageURL != "" {
			page := pageURL
			item.DownloadPage = &page
		}
		items = append(items, item)
	}

	ok, err := s.handoff.Submit(ctx, items)
	if err != nil {
		return nil, newError(CodeHandoffUnavailable, "download manager did not respond", err)
	}
	if !ok {
		return nil, newError(CodeHandoffRejected, "download manager rejected the links", nil)
	}
	return items, nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == code
}
