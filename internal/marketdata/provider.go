package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Provider serves price history and fundamentals for one symbol.
type Provider interface {
	Stock(ctx context.Context, symbol, period string) (StockResponse, error)
	Fundamental(ctx context.Context, symbol string) (FundamentalResponse, error)
}

type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

type assetClient interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
}

// AlpacaProvider implements Provider with the Alpaca market data and
// trading APIs. Credentials come from the APCA_* environment variables.
type AlpacaProvider struct {
	bars   barsClient
	assets assetClient
	feed   marketdata.Feed
	now    func() time.Time
}

var _ Provider = (*AlpacaProvider)(nil)

// NewAlpacaProvider returns a provider reading bars from feed ("iex" or "sip").
func NewAlpacaProvider(feed string) *AlpacaProvider {
	return &AlpacaProvider{
		bars:   marketdata.NewClient(marketdata.ClientOpts{}),
		assets: alpaca.NewClient(alpaca.ClientOpts{}),
		feed:   marketdata.Feed(feed),
		now:    time.Now,
	}
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("marketdata: symbol is required")
	}
	return symbol, nil
}

func (p *AlpacaProvider) Stock(ctx context.Context, symbol, period string) (StockResponse, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return StockResponse{}, err
	}
	per, err := ParsePeriod(period)
	if err != nil {
		return StockResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return StockResponse{}, err
	}

	now := p.now()
	bars, err := p.bars.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  per.TimeFrame,
		Start:      per.Lookback(now),
		End:        now,
		Adjustment: marketdata.Split,
		Feed:       p.feed,
	})
	if err != nil {
		return StockResponse{}, fmt.Errorf("marketdata: bars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return StockResponse{}, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}

	resp := StockResponse{
		Symbol:         symbol,
		HistoricalData: make([]HistoricalPoint, 0, len(bars)),
		Interval:       per.Interval,
	}
	for _, b := range bars {
		resp.HistoricalData = append(resp.HistoricalData, HistoricalPoint{
			Date:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}

	resp.CurrentPrice = bars[len(bars)-1].Close
	trade, err := p.bars.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: p.feed})
	if err == nil && trade != nil && trade.Price > 0 {
		resp.CurrentPrice = trade.Price
	}
	prev := bars[0].Close
	if len(bars) > 1 {
		prev = bars[len(bars)-2].Close
	}
	resp.Change, resp.ChangePercent = change(prev, resp.CurrentPrice)
	return resp, nil
}

// change returns the absolute and percentage move from prev to cur, both
// rounded to two decimals.
func change(prev, cur float64) (float64, float64) {
	d := decimal.NewFromFloat(cur).Sub(decimal.NewFromFloat(prev))
	abs, _ := d.Round(2).Float64()
	if prev == 0 {
		return abs, 0
	}
	pct, _ := d.Div(decimal.NewFromFloat(prev)).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return abs, pct
}

// Fundamental serves the asset description. Alpaca exposes no financial
// statements or analyst ratings, so those collections are always empty.
func (p *AlpacaProvider) Fundamental(ctx context.Context, symbol string) (FundamentalResponse, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return FundamentalResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return FundamentalResponse{}, err
	}
	asset, err := p.assets.GetAsset(symbol)
	if err != nil {
		return FundamentalResponse{}, fmt.Errorf("marketdata: asset %s: %w", symbol, err)
	}
	if asset == nil {
		return FundamentalResponse{}, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}
	return FundamentalResponse{
		CompanyInfo: CompanyInfo{
			Symbol:       asset.Symbol,
			Name:         asset.Name,
			Exchange:     asset.Exchange,
			AssetClass:   string(asset.Class),
			Status:       string(asset.Status),
			Tradable:     asset.Tradable,
			Shortable:    asset.Shortable,
			Fractionable: asset.Fractionable,
		},
		Financials:             map[string]float64{},
		AnalystRecommendations: []map[string]any{},
		Dividends:              []Dividend{},
	}, nil
}
