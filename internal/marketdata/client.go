package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx response from a data service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("marketdata: upstream %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("marketdata: upstream %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is a Provider backed by another chartdesk (or compatible) data
// service exposing /api/stock and /api/fundamental.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Provider = (*Client)(nil)

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) Stock(ctx context.Context, symbol, period string) (StockResponse, error) {
	q := url.Values{"symbol": {symbol}}
	if period != "" {
		q.Set("period", period)
	}
	var out StockResponse
	err := c.get(ctx, "/api/stock", q, &out)
	return out, err
}

func (c *Client) Fundamental(ctx context.Context, symbol string) (FundamentalResponse, error) {
	var out FundamentalResponse
	err := c.get(ctx, "/api/fundamental", url.Values{"symbol": {symbol}}, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("marketdata: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("marketdata: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("marketdata: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var er ErrorResponse
		if json.Unmarshal(body, &er) == nil {
			if er.Error != "" {
				apiErr.Code = er.Error
			}
			apiErr.Message = er.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("marketdata: decode %s: %w", path, err)
	}
	return nil
}
