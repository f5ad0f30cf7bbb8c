package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartdesk/internal/controller"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/prediction"
)

func registerSessionHandlers(api huma.API, svc Service) {
	type listSessionsOutput struct {
		Body struct {
			Sessions []controller.SessionInfo `json:"sessions"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-sessions", Method: http.MethodGet, Path: "/api/v1/sessions", Summary: "List open chart sessions", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct{}) (*listSessionsOutput, error) {
			out := &listSessionsOutput{}
			out.Body.Sessions = svc.List()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-session", Method: http.MethodPost, Path: "/api/v1/sessions", Summary: "Open a chart session", Tags: []string{"Sessions"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body controller.CreateRequest
		}) (*sessionOutput, error) {
			info, err := svc.Create(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}", Summary: "Get session state", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*sessionOutput, error) {
			info, err := svc.Info(input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: info}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-session", Method: http.MethodDelete, Path: "/api/v1/sessions/{session_id}", Summary: "Save and close a session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*statusOutput, error) {
			if err := svc.CloseSession(ctx, input.SessionID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "load-symbol", Method: http.MethodPut, Path: "/api/v1/sessions/{session_id}/symbol", Summary: "Switch the session to another instrument", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      struct {
				Symbol string `json:"symbol" required:"true" doc:"Ticker symbol"`
				Period string `json:"period,omitempty" doc:"History period, default 1y"`
			}
		}) (*sessionOutput, error) {
			info, err := svc.LoadSymbol(ctx, input.SessionID, input.Body.Symbol, input.Body.Period)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: info}, nil
		})

	type quoteOutput struct {
		Body marketdata.StockResponse
	}

	huma.Register(api, huma.Operation{OperationID: "get-session-quote", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}/quote", Summary: "Price data loaded into the session", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*quoteOutput, error) {
			q, err := svc.Quote(input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &quoteOutput{Body: q}, nil
		})

	type scalesOutput struct {
		Body overlay.Scales
	}

	huma.Register(api, huma.Operation{OperationID: "get-scales", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}/scales", Summary: "Current axis ranges", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*scalesOutput, error) {
			sc, err := svc.Scales(input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &scalesOutput{Body: sc}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-scales", Method: http.MethodPut, Path: "/api/v1/sessions/{session_id}/scales", Summary: "Report axis ranges after pan or zoom", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      overlay.Scales
		}) (*statusOutput, error) {
			if err := svc.SetScales(ctx, input.SessionID, input.Body); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type frameOutput struct {
		Body struct {
			Annotations map[string]map[string]any `json:"annotations"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-primitives", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}/primitives", Summary: "Annotation map last drawn, in Chart.js annotation plugin form", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *sessionIDInput) (*frameOutput, error) {
			frame, err := svc.Frame(input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &frameOutput{}
			out.Body.Annotations = frame
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "run-command", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/commands", Summary: "Run a toolbar command", Description: "Actions: draw_line, add_signal, add_note, add_tpsl, add_shape, cancel, clear, chart_type, redraw, deselect, delete_selection.", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      controller.Command
		}) (*sessionOutput, error) {
			info, err := svc.Execute(ctx, input.SessionID, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: info}, nil
		})

	type pointerOutput struct {
		Body struct {
			Processed bool `json:"processed"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "send-input", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/input", Summary: "Deliver a pointer or key event", Description: "For high-rate pointer moves prefer the WebSocket channel at /ws/sessions/{session_id}.", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      controller.PointerInput
		}) (*pointerOutput, error) {
			processed, err := svc.Pointer(ctx, input.SessionID, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pointerOutput{}
			out.Body.Processed = processed
			return out, nil
		})

	type noteOutput struct {
		Body struct {
			ID string `json:"id"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "submit-note", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/note", Summary: "Submit the pending note form", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      overlay.NoteDetails
		}) (*noteOutput, error) {
			id, err := svc.SubmitNote(ctx, input.SessionID, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &noteOutput{}
			out.Body.ID = id
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "cancel-note", Method: http.MethodDelete, Path: "/api/v1/sessions/{session_id}/note", Summary: "Cancel the pending note form", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *sessionIDInput) (*statusOutput, error) {
			if err := svc.CancelNote(ctx, input.SessionID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type indicatorsOutput struct {
		Body struct {
			Enabled []string `json:"enabled"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "set-indicators", Method: http.MethodPut, Path: "/api/v1/sessions/{session_id}/indicators", Summary: "Replace the enabled indicators", Description: "An empty list turns all indicators off.", Tags: []string{"Overlays"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      struct {
				Names []string `json:"names" doc:"Indicator names from /api/v1/catalog"`
			}
		}) (*indicatorsOutput, error) {
			enabled, err := svc.SetIndicators(ctx, input.SessionID, input.Body.Names)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &indicatorsOutput{}
			out.Body.Enabled = enabled
			return out, nil
		})

	type predictionOutput struct {
		Body overlay.Prediction
	}

	huma.Register(api, huma.Operation{OperationID: "set-prediction", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/prediction", Summary: "Fit and show a price projection", Tags: []string{"Overlays"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Body      prediction.Config
		}) (*predictionOutput, error) {
			p, err := svc.Predict(ctx, input.SessionID, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &predictionOutput{Body: p}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-prediction", Method: http.MethodDelete, Path: "/api/v1/sessions/{session_id}/prediction", Summary: "Remove the price projection", Tags: []string{"Overlays"}},
		func(ctx context.Context, input *sessionIDInput) (*statusOutput, error) {
			if err := svc.ClearPrediction(ctx, input.SessionID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})
}
