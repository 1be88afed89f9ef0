// Package api serves the control API for the capture engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/linkgrabber/internal/config"
	"github.com/dgnsrekt/linkgrabber/internal/controller"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

type Service interface {
	Health(ctx context.Context) controller.HealthResult
	GetPolicy(ctx context.Context) config.Policy
	UpdatePolicy(ctx context.Context, p config.Policy, persist bool) (config.Policy, error)
	ReloadPolicy(ctx context.Context) (config.Policy, error)
	SetKey(ctx context.Context, key string) string
	ListTabs(ctx context.Context) []types.TabRecord
	GetTab(ctx context.Context, tabID string) (types.TabRecord, error)
	Stats(ctx context.Context) controller.StatsResult
	RecentMedia(ctx context.Context, tabID string) []types.MediaItem
	AddDownloads(ctx context.Context, links []string, pageURL string) ([]types.DirectDownloadItem, error)
}

// Feeds are the streaming media endpoints. Either may be nil.
type Feeds struct {
	SSE http.Handler
	WS  http.Handler
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func NewServer(svc Service, feeds Feeds) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Linkgrabber Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs/feeds", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(feedsDocsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if feeds.SSE != nil {
		router.Method(http.MethodGet, "/api/v1/media/events", feeds.SSE)
	}
	if feeds.WS != nil {
		router.Method(http.MethodGet, "/api/v1/media/ws", feeds.WS)
	}

	registerStateHandlers(api, svc)
	registerPolicyHandlers(api, svc)
	registerMediaHandlers(api, svc)

	docs, err := renderDocs(api.OpenAPI())
	if err != nil {
		slog.Error("failed to render API docs", "error", err)
	}
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		if docs == nil {
			http.Error(w, "docs unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write(docs); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *controller.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case controller.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case controller.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case controller.CodeHandoffRejected:
			return huma.Error422UnprocessableEntity(coded.Message)
		case controller.CodeHandoffUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case controller.CodePolicyReload:
			return huma.Error409Conflict(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
