package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/linkgrabber/internal/controller"
	"github.com/dgnsrekt/linkgrabber/internal/types"
)

func registerStateHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body controller.HealthResult
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Health check including download manager reachability", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body = svc.Health(ctx)
			return out, nil
		})

	type statsOutput struct {
		Body controller.StatsResult
	}
	huma.Register(api, huma.Operation{OperationID: "stats", Method: http.MethodGet, Path: "/api/v1/stats", Summary: "Decision counters and store sizes", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			out := &statsOutput{}
			out.Body = svc.Stats(ctx)
			return out, nil
		})

	type listTabsOutput struct {
		Body struct {
			Tabs []types.TabRecord `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List known browser tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			out := &listTabsOutput{}
			out.Body.Tabs = svc.ListTabs(ctx)
			if out.Body.Tabs == nil {
				out.Body.Tabs = []types.TabRecord{}
			}
			return out, nil
		})

	type tabOutput struct {
		Body types.TabRecord
	}
	huma.Register(api, huma.Operation{OperationID: "get-tab", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}", Summary: "Get one browser tab", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
		}) (*tabOutput, error) {
			tab, err := svc.GetTab(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabOutput{}
			out.Body = tab
			return out, nil
		})

	type keyOutput struct {
		Body struct {
			Key string `json:"key"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-key", Method: http.MethodPut, Path: "/api/v1/keys", Summary: "Set the modifier key held on the page", Tags: []string{"Keys"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Key string `json:"key" doc:"Key name as reported by KeyboardEvent.key, e.g. Control. Empty clears it."`
			}
		}) (*keyOutput, error) {
			out := &keyOutput{}
			out.Body.Key = svc.SetKey(ctx, input.Body.Key)
			return out, nil
		})
}
