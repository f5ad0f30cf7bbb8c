package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

func TestParsePeriod(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in       string
		interval string
		start    time.Time
	}{
		{"", "1d", now.AddDate(-1, 0, 0)},
		{"5D", "15m", now.AddDate(0, 0, -5)},
		{"3mo", "1d", now.AddDate(0, -3, 0)},
		{"max", "1wk", now.AddDate(-20, 0, 0)},
	}
	for _, tt := range tests {
		p, err := ParsePeriod(tt.in)
		if err != nil {
			t.Fatalf("ParsePeriod(%q) = %v; want nil", tt.in, err)
		}
		if p.Interval != tt.interval || !p.Lookback(now).Equal(tt.start) {
			t.Fatalf("ParsePeriod(%q) = %s from %v; want %s from %v", tt.in, p.Interval, p.Lookback(now), tt.interval, tt.start)
		}
	}
	if _, err := ParsePeriod("7y"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("ParsePeriod(7y) = %v; want ErrInvalidPeriod", err)
	}
}

type fakeBars struct {
	bars  []marketdata.Bar
	trade *marketdata.Trade
	req   marketdata.GetBarsRequest
}

func (f *fakeBars) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, nil
}

func (f *fakeBars) GetLatestTrade(string, marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	if f.trade == nil {
		return nil, errors.New("no trade")
	}
	return f.trade, nil
}

type fakeAssets struct{ asset *alpaca.Asset }

func (f fakeAssets) GetAsset(string) (*alpaca.Asset, error) { return f.asset, nil }

func TestAlpacaProviderStock(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := &fakeBars{
		bars: []marketdata.Bar{
			{Timestamp: now.AddDate(0, 0, -2), Open: 9, High: 11, Low: 8, Close: 10, Volume: 100},
			{Timestamp: now.AddDate(0, 0, -1), Open: 10, High: 13, Low: 10, Close: 12, Volume: 200},
		},
		trade: &marketdata.Trade{Price: 12.5},
	}
	p := &AlpacaProvider{bars: bars, now: func() time.Time { return now }, feed: marketdata.IEX}

	got, err := p.Stock(context.Background(), " aapl", "")
	if err != nil {
		t.Fatalf("Stock() = %v; want nil", err)
	}
	if got.Symbol != "AAPL" || got.Interval != "1d" || len(got.HistoricalData) != 2 {
		t.Fatalf("Stock() = %+v", got)
	}
	if got.CurrentPrice != 12.5 || got.Change != 2.5 || got.ChangePercent != 25 {
		t.Fatalf("price/change = %v/%v/%v; want 12.5/2.5/25", got.CurrentPrice, got.Change, got.ChangePercent)
	}
	if !bars.req.Start.Equal(now.AddDate(-1, 0, 0)) || bars.req.Feed != marketdata.IEX {
		t.Fatalf("bars request = %+v", bars.req)
	}
	candles := got.Candles()
	if candles[1].Time != float64(now.AddDate(0, 0, -1).UnixMilli()) || candles[1].Close != 12 {
		t.Fatalf("Candles() = %+v", candles)
	}
}

func TestAlpacaProviderNoData(t *testing.T) {
	p := &AlpacaProvider{bars: &fakeBars{}, now: time.Now}
	if _, err := p.Stock(context.Background(), "ZZZZ", "1y"); !errors.Is(err, ErrNoData) {
		t.Fatalf("Stock() = %v; want ErrNoData", err)
	}
}

func TestAlpacaProviderFundamental(t *testing.T) {
	p := &AlpacaProvider{assets: fakeAssets{asset: &alpaca.Asset{Symbol: "MSFT", Name: "Microsoft", Exchange: "NASDAQ", Tradable: true}}}
	got, err := p.Fundamental(context.Background(), "msft")
	if err != nil {
		t.Fatalf("Fundamental() = %v; want nil", err)
	}
	if got.CompanyInfo.Name != "Microsoft" || !got.CompanyInfo.Tradable {
		t.Fatalf("CompanyInfo = %+v", got.CompanyInfo)
	}
	if got.Financials == nil || got.Dividends == nil || got.AnalystRecommendations == nil {
		t.Fatalf("collections must be non-nil: %+v", got)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stock" || r.URL.Query().Get("symbol") != "NOPE" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "not_found", Message: "no data for NOPE"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Stock(context.Background(), "NOPE", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Stock() = %v; want *APIError", err)
	}
	if apiErr.Status != 404 || apiErr.Code != "not_found" || apiErr.Message != "no data for NOPE" {
		t.Fatalf("APIError = %+v", apiErr)
	}
}

func TestClientStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period") != "5d" {
			t.Errorf("period = %q; want 5d", r.URL.Query().Get("period"))
		}
		json.NewEncoder(w).Encode(StockResponse{Symbol: "AAPL", CurrentPrice: 190, Interval: "15m"})
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL+"/", nil).Stock(context.Background(), "AAPL", "5d")
	if err != nil {
		t.Fatalf("Stock() = %v; want nil", err)
	}
	if got.Symbol != "AAPL" || got.CurrentPrice != 190 {
		t.Fatalf("Stock() = %+v", got)
	}
}
