package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/tabkondo/internal/progress"
	"github.com/dgnsrekt/tabkondo/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	SaveTabs(ctx context.Context) (service.RunInfo, error)
	Status() service.Status
	Options() (service.Options, error)
	SetToken(token string) error
	ClearToken() error
}

type runInfoOutput struct {
	Body service.RunInfo
}

type statusOutput struct {
	Body service.Status
}

type optionsOutput struct {
	Body service.Options
}

type setTokenInput struct {
	Body struct {
		Token string `json:"token" minLength:"1" doc:"Readwise access token"`
	}
}

func NewServer(svc Service, broker *progress.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("TabKondo Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/api/v1/events", progress.SSEHandler(broker))
	router.Get("/api/v1/events/ws", progress.WebSocketHandler(broker))

	registerHealthHandlers(api)
	registerRunHandlers(api, svc)
	registerOptionsHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func registerRunHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "save-tabs",
		Method:        http.MethodPost,
		Path:          "/api/v1/save-tabs",
		Summary:       "Save all open tabs to Readwise and close them",
		Description:   "Starts a run in the background. Progress is streamed on /api/v1/events and /api/v1/events/ws.",
		Tags:          []string{"Run"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *struct{}) (*runInfoOutput, error) {
		info, err := svc.SaveTabs(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		return &runInfoOutput{Body: info}, nil
	})

	huma.Register(api, huma.Operation{OperationID: "run-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Current or last run status", Tags: []string{"Run"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return &statusOutput{Body: svc.Status()}, nil
		})
}

func registerOptionsHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-options", Method: http.MethodGet, Path: "/api/v1/options", Summary: "Stored options", Tags: []string{"Options"}},
		func(ctx context.Context, input *struct{}) (*optionsOutput, error) {
			opts, err := svc.Options()
			if err != nil {
				return nil, mapErr(err)
			}
			return &optionsOutput{Body: opts}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-token", Method: http.MethodPut, Path: "/api/v1/options/token", Summary: "Store the Readwise API token", Tags: []string{"Options"}},
		func(ctx context.Context, input *setTokenInput) (*optionsOutput, error) {
			if err := svc.SetToken(input.Body.Token); err != nil {
				return nil, mapErr(err)
			}
			opts, err := svc.Options()
			if err != nil {
				return nil, mapErr(err)
			}
			return &optionsOutput{Body: opts}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-token", Method: http.MethodDelete, Path: "/api/v1/options/token", Summary: "Remove the stored Readwise API token", Tags: []string{"Options"}},
		func(ctx context.Context, input *struct{}) (*optionsOutput, error) {
			if err := svc.ClearToken(); err != nil {
				return nil, mapErr(err)
			}
			opts, err := svc.Options()
			if err != nil {
				return nil, mapErr(err)
			}
			return &optionsOutput{Body: opts}, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *service.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case service.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case service.CodeMissingToken:
			return huma.Error412PreconditionFailed(coded.Message)
		case service.CodeRunInProgress:
			return huma.Error409Conflict(coded.Message)
		case service.CodeBrowser:
			return huma.Error502BadGateway(coded.Error())
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
