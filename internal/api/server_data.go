package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartdesk/internal/controller"
	"github.com/dgnsrekt/chartdesk/internal/indicators"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

// dataError is the {error, message} body the dashboard expects from the
// data endpoints.
type dataError struct {
	status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *dataError) Error() string  { return e.Code + ": " + e.Message }
func (e *dataError) GetStatus() int { return e.status }

func mapDataErr(err error) error {
	out := &dataError{status: http.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
	var coded *overlay.CodedError
	if errors.As(err, &coded) {
		out.Message = coded.Message
		switch coded.Code {
		case overlay.CodeValidation:
			out.status, out.Code = http.StatusBadRequest, "invalid_request"
		case overlay.CodeNotFound:
			out.status, out.Code = http.StatusNotFound, "not_found"
		case controller.CodeUpstream:
			out.status, out.Code = http.StatusBadGateway, "upstream_error"
		}
	}
	return out
}

func registerDataHandlers(api huma.API, svc Service) {
	type stockOutput struct {
		Body marketdata.StockResponse
	}

	huma.Register(api, huma.Operation{OperationID: "get-stock", Method: http.MethodGet, Path: "/api/stock", Summary: "Price history and quote for a symbol", Tags: []string{"Data"}},
		func(ctx context.Context, input *struct {
			Symbol string `query:"symbol" doc:"Ticker symbol (e.g. AAPL)"`
			Period string `query:"period" doc:"One of 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, max" default:"1y"`
		}) (*stockOutput, error) {
			resp, err := svc.Stock(ctx, input.Symbol, input.Period)
			if err != nil {
				return nil, mapDataErr(err)
			}
			return &stockOutput{Body: resp}, nil
		})

	type fundamentalOutput struct {
		Body marketdata.FundamentalResponse
	}

	huma.Register(api, huma.Operation{OperationID: "get-fundamental", Method: http.MethodGet, Path: "/api/fundamental", Summary: "Company information for a symbol", Tags: []string{"Data"}},
		func(ctx context.Context, input *struct {
			Symbol string `query:"symbol" doc:"Ticker symbol (e.g. AAPL)"`
		}) (*fundamentalOutput, error) {
			resp, err := svc.Fundamental(ctx, input.Symbol)
			if err != nil {
				return nil, mapDataErr(err)
			}
			return &fundamentalOutput{Body: resp}, nil
		})

	type catalogOutput struct {
		Body struct {
			Periods    []string `json:"periods"`
			Indicators []string `json:"indicators"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-catalog", Method: http.MethodGet, Path: "/api/v1/catalog", Summary: "Supported periods and indicators", Tags: []string{"Data"}},
		func(ctx context.Context, input *struct{}) (*catalogOutput, error) {
			out := &catalogOutput{}
			out.Body.Periods = marketdata.SupportedPeriods()
			out.Body.Indicators = indicators.Names()
			return out, nil
		})
}
