package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/chartdesk/internal/controller"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/metrics"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/prediction"
	"github.com/dgnsrekt/chartdesk/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Create(ctx context.Context, req controller.CreateRequest) (controller.SessionInfo, error)
	Info(id string) (controller.SessionInfo, error)
	List() []controller.SessionInfo
	CloseSession(ctx context.Context, id string) error
	LoadSymbol(ctx context.Context, id, symbol, period string) (controller.SessionInfo, error)
	Quote(id string) (marketdata.StockResponse, error)
	SetScales(ctx context.Context, id string, scales overlay.Scales) error
	Scales(id string) (overlay.Scales, error)
	Frame(id string) (map[string]map[string]any, error)
	Execute(ctx context.Context, id string, cmd controller.Command) (controller.SessionInfo, error)
	Pointer(ctx context.Context, id string, in controller.PointerInput) (bool, error)
	SubmitNote(ctx context.Context, id string, d overlay.NoteDetails) (string, error)
	CancelNote(ctx context.Context, id string) error
	SetIndicators(ctx context.Context, id string, names []string) ([]string, error)
	Predict(ctx context.Context, id string, cfg prediction.Config) (overlay.Prediction, error)
	ClearPrediction(ctx context.Context, id string) error
	Annotations(id string) (overlay.Snapshot, error)
	AddAnnotation(ctx context.Context, id string, kind overlay.Kind, raw json.RawMessage) (string, error)
	UpdateGeometry(ctx context.Context, id string, kind overlay.Kind, annID string, patch overlay.GeometryPatch) error
	DeleteAnnotation(ctx context.Context, id string, kind overlay.Kind, annID string) error
	ReplaceAnnotations(ctx context.Context, id string, snap overlay.Snapshot) error
	Records(ctx context.Context) ([]string, error)
	Record(ctx context.Context, symbol string) (overlay.Snapshot, error)
	DeleteRecord(ctx context.Context, symbol string) error
	Stock(ctx context.Context, symbol, period string) (marketdata.StockResponse, error)
	Fundamental(ctx context.Context, symbol string) (marketdata.FundamentalResponse, error)
}

// Options carries the optional collaborators of the HTTP server.
type Options struct {
	Broker *relay.Broker
	// Metrics may be nil; /metrics is then not served.
	Metrics   *metrics.Metrics
	Heartbeat time.Duration
}

type sessionIDInput struct {
	SessionID string `path:"session_id" doc:"Session id returned by create-session"`
}

type sessionOutput struct {
	Body controller.SessionInfo
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func okStatus() *statusOutput {
	out := &statusOutput{}
	out.Body.Status = "ok"
	return out
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	if opts.Metrics != nil {
		router.Use(observeRequests(opts.Metrics))
	}
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Chartdesk API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/feeds", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(feedDocsHTML)); err != nil {
			slog.Debug("feed docs response write failed", "error", err)
		}
	})

	if opts.Broker != nil {
		hopts := relay.HandlerOptions{Heartbeat: opts.Heartbeat}
		if opts.Metrics != nil {
			hopts.OnConnect = opts.Metrics.FeedConnected
			hopts.OnDisconnect = opts.Metrics.FeedDisconnected
		}
		router.Get("/events", relay.SSEHandler(opts.Broker, hopts))
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}
	router.Get("/ws/sessions/{session_id}", pointerSocket(svc))

	registerDataHandlers(api, svc)
	registerSessionHandlers(api, svc)
	registerAnnotationHandlers(api, svc)
	registerRecordHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *overlay.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case overlay.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case overlay.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case overlay.CodeChartUnavailable:
			return huma.Error409Conflict(coded.Message)
		case controller.CodeUpstream:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
