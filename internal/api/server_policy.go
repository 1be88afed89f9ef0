package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/linkgrabber/internal/config"
)

func registerPolicyHandlers(api huma.API, svc Service) {
	type policyOutput struct {
		Body config.Policy
	}

	huma.Register(api, huma.Operation{OperationID: "get-policy", Method: http.MethodGet, Path: "/api/v1/policy", Summary: "Get the current capture policy", Tags: []string{"Policy"}},
		func(ctx context.Context, input *struct{}) (*policyOutput, error) {
			out := &policyOutput{}
			out.Body = svc.GetPolicy(ctx)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-policy", Method: http.MethodPut, Path: "/api/v1/policy", Summary: "Replace the capture policy", Tags: []string{"Policy"}},
		func(ctx context.Context, input *struct {
			Persist bool `query:"persist" default:"true" doc:"Write the policy back to the policy file"`
			Body    config.Policy
		}) (*policyOutput, error) {
			p, err := svc.UpdatePolicy(ctx, input.Body, input.Persist)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &policyOutput{}
			out.Body = p
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reload-policy", Method: http.MethodPost, Path: "/api/v1/policy/reload", Summary: "Re-read the policy file", Tags: []string{"Policy"}},
		func(ctx context.Context, input *struct{}) (*policyOutput, error) {
			p, err := svc.ReloadPolicy(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &policyOutput{}
			out.Body = p
			return out, nil
		})
}
