package marketdata

import (
	"errors"
	"time"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

var (
	// ErrInvalidPeriod is returned for a period outside SupportedPeriods.
	ErrInvalidPeriod = errors.New("marketdata: invalid period")
	// ErrNoData is returned when the provider has no bars for a symbol.
	ErrNoData = errors.New("marketdata: no data")
)

// HistoricalPoint is one OHLCV bar as served by /api/stock.
type HistoricalPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// StockResponse is the body of GET /api/stock.
type StockResponse struct {
	Symbol         string            `json:"symbol"`
	HistoricalData []HistoricalPoint `json:"historicalData"`
	CurrentPrice   float64           `json:"currentPrice"`
	Change         float64           `json:"change"`
	ChangePercent  float64           `json:"changePercent"`
	Interval       string            `json:"interval"`
}

// Candles converts the bars into chart candles keyed by epoch milliseconds.
func (r StockResponse) Candles() []overlay.Candle {
	out := make([]overlay.Candle, 0, len(r.HistoricalData))
	for _, p := range r.HistoricalData {
		out = append(out, overlay.Candle{
			Time:   float64(p.Date.UnixMilli()),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}
	return out
}

// CompanyInfo is the descriptive part of a fundamentals response.
type CompanyInfo struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Exchange     string `json:"exchange"`
	AssetClass   string `json:"assetClass"`
	Status       string `json:"status"`
	Tradable     bool   `json:"tradable"`
	Shortable    bool   `json:"shortable"`
	Fractionable bool   `json:"fractionable"`
}

// Dividend is one cash distribution.
type Dividend struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// FundamentalResponse is the body of GET /api/fundamental.
type FundamentalResponse struct {
	CompanyInfo            CompanyInfo        `json:"company_info"`
	Financials             map[string]float64 `json:"financials"`
	AnalystRecommendations []map[string]any   `json:"analyst_recommendations"`
	Dividends              []Dividend         `json:"dividends"`
}

// ErrorResponse is the body of every non-2xx data response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
