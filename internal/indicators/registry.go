package indicators

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

var (
	ErrEmptySelection = errors.New("indicators: select at least one indicator")
	ErrUnknown        = errors.New("indicators: unknown indicator")
)

type computeFunc func(closes []float64) map[string][]float64

var registry = map[string]computeFunc{
	"sma20": func(c []float64) map[string][]float64 { return map[string][]float64{"sma20": SMA(c, 20)} },
	"sma50": func(c []float64) map[string][]float64 { return map[string][]float64{"sma50": SMA(c, 50)} },
	"ema20": func(c []float64) map[string][]float64 { return map[string][]float64{"ema20": EMA(c, 20)} },
	"rsi14": func(c []float64) map[string][]float64 { return map[string][]float64{"rsi14": RSI(c, 14)} },
	"bollinger": func(c []float64) map[string][]float64 {
		b := Bollinger(c, 20, 2)
		return map[string][]float64{
			"bollinger_upper":  b.Upper,
			"bollinger_middle": b.Middle,
			"bollinger_lower":  b.Lower,
		}
	},
}

// Names lists the selectable indicators.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Compute evaluates the named indicators over the candle closes. Leading
// positions without enough history are left out of each series.
func Compute(names []string, candles []overlay.Candle) ([]overlay.Series, error) {
	if len(names) == 0 {
		return nil, ErrEmptySelection
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	var out []overlay.Series
	seen := make(map[string]bool)
	for _, name := range names {
		fn, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknown, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		results := fn(closes)
		keys := make([]string, 0, len(results))
		for k := range results {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			out = append(out, toSeries(k, candles, results[k]))
		}
	}
	return out, nil
}

func toSeries(name string, candles []overlay.Candle, values []float64) overlay.Series {
	s := overlay.Series{Name: name}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		s.Values = append(s.Values, overlay.Point{X: candles[i].Time, Y: v})
	}
	return s
}
