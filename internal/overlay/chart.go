package overlay

// Candle is one OHLCV bar; Time is epoch milliseconds.
type Candle struct {
	Time   float64 `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ChartType selects how price data is drawn.
type ChartType string

const (
	ChartLine        ChartType = "line"
	ChartCandlestick ChartType = "candlestick"
)

// Prediction is a forecast overlay: a central path, an optional confidence
// band and an optional target marker.
type Prediction struct {
	Path   []Point `json:"path"`
	Upper  []Point `json:"upper,omitempty"`
	Lower  []Point `json:"lower,omitempty"`
	Target *Point  `json:"target,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Series is a named indicator series aligned with the candles.
type Series struct {
	Name   string  `json:"name"`
	Values []Point `json:"values"`
}

// Last returns the last finite value of the series.
func (s Series) Last() (Point, bool) {
	for i := len(s.Values) - 1; i >= 0; i-- {
		if finite(s.Values[i].X, s.Values[i].Y) {
			return s.Values[i], true
		}
	}
	return Point{}, false
}
