package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

func registerMediaHandlers(api huma.API, svc Service) {
	type mediaOutput struct {
		Body struct {
			Items []types.MediaItem `json:"items"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-media", Method: http.MethodGet, Path: "/api/v1/media", Summary: "List recently detected media", Tags: []string{"Media"}},
		func(ctx context.Context, input *struct {
			TabID string `query:"tab" doc:"Only items detected on this tab"`
		}) (*mediaOutput, error) {
			out := &mediaOutput{}
			out.Body.Items = svc.RecentMedia(ctx, input.TabID)
			if out.Body.Items == nil {
				out.Body.Items = []types.MediaItem{}
			}
			return out, nil
		})

	type downloadsOutput struct {
		Body struct {
			Items []types.DirectDownloadItem `json:"items"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "add-downloads", Method: http.MethodPost, Path: "/api/v1/downloads", Summary: "Send links to the download manager", Tags: []string{"Downloads"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Links   []string `json:"links" minItems:"1" doc:"http(s) links to download"`
				PageURL string   `json:"page_url,omitempty" doc:"Page the links were found on"`
			}
		}) (*downloadsOutput, error) {
			items, err := svc.AddDownloads(ctx, input.Body.Links, input.Body.PageURL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &downloadsOutput{}
			out.Body.Items = items
			return out, nil
		})
}
