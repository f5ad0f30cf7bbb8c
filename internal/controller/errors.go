package controller

import (
	"errors"
	"strings"

	"github.com/dgnsrekt/chartdesk/internal/indicators"
	"github.com/dgnsrekt/chartdesk/internal/marketdata"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/dgnsrekt/chartdesk/internal/prediction"
)

// CodeUpstream marks market data provider failures.
const CodeUpstream = "UPSTREAM_FAILURE"

func coded(code, msg string, cause error) error {
	return &overlay.CodedError{Code: code, Message: msg, Cause: cause}
}

func requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return coded(overlay.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

// classify maps errors of the data packages onto coded errors.
func classify(err error) error {
	var ce *overlay.CodedError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return err
	case errors.Is(err, marketdata.ErrInvalidPeriod),
		errors.Is(err, indicators.ErrEmptySelection),
		errors.Is(err, indicators.ErrUnknown),
		errors.Is(err, prediction.ErrNotEnoughData),
		errors.Is(err, prediction.ErrUnsupportedDegree):
		return coded(overlay.CodeValidation, err.Error(), err)
	case errors.Is(err, marketdata.ErrNoData):
		return coded(overlay.CodeNotFound, err.Error(), err)
	}
	var apiErr *marketdata.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return coded(overlay.CodeValidation, apiErr.Message, err)
	}
	return coded(CodeUpstream, "market data request failed", err)
}
