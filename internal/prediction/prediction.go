// Package prediction fits a trend to recent closes and projects it forward
// as a prediction overlay.
package prediction

import (
	"errors"
	"fmt"
	"math"

	"github.com/dgnsrekt/chartdesk/internal/overlay"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Config controls the fit.
type Config struct {
	// Lookback is how many trailing candles are fitted.
	Lookback int `json:"lookback,omitempty"`
	// Horizon is how many days are projected past the last candle.
	Horizon int `json:"horizon,omitempty"`
	// Degree of the fitted polynomial, 1 or 2.
	Degree int `json:"degree,omitempty"`
	// Sigmas is the half-width of the confidence band in residual
	// standard deviations.
	Sigmas float64 `json:"sigmas,omitempty"`
}

func DefaultConfig() Config {
	return Config{Lookback: 60, Horizon: 30, Degree: 1, Sigmas: 2}
}

var (
	ErrNotEnoughData     = errors.New("prediction: not enough candles")
	ErrUnsupportedDegree = errors.New("prediction: unsupported degree")
)

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.Horizon <= 0 {
		c.Horizon = d.Horizon
	}
	if c.Degree <= 0 {
		c.Degree = d.Degree
	}
	if c.Sigmas <= 0 {
		c.Sigmas = d.Sigmas
	}
	return c
}

// Forecast fits the trailing closes and returns the projected path with its
// confidence band and end-of-horizon target.
func Forecast(candles []overlay.Candle, cfg Config) (overlay.Prediction, error) {
	cfg = cfg.withDefaults()
	if cfg.Degree > 2 {
		return overlay.Prediction{}, fmt.Errorf("%w: %d", ErrUnsupportedDegree, cfg.Degree)
	}
	n := min(cfg.Lookback, len(candles))
	if n < cfg.Degree+2 {
		return overlay.Prediction{}, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughData, n, cfg.Degree+2)
	}
	recent := candles[len(candles)-n:]
	origin := recent[0].Time

	cols := cfg.Degree + 1
	a := mat.NewDense(n, cols, nil)
	b := mat.NewVecDense(n, nil)
	for i, c := range recent {
		t := (c.Time - origin) / overlay.DayMillis
		for j := 0; j < cols; j++ {
			a.Set(i, j, math.Pow(t, float64(j)))
		}
		b.SetVec(i, c.Close)
	}

	var qr mat.QR
	qr.Factorize(a)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, b); err != nil {
		return overlay.Prediction{}, fmt.Errorf("prediction: fit: %w", err)
	}
	eval := func(t float64) float64 {
		y := 0.0
		for j := 0; j < cols; j++ {
			y += coef.AtVec(j) * math.Pow(t, float64(j))
		}
		return y
	}

	residuals := make([]float64, n)
	for i, c := range recent {
		residuals[i] = c.Close - eval((c.Time-origin)/overlay.DayMillis)
	}
	band := cfg.Sigmas * stat.PopStdDev(residuals, nil)

	last := recent[n-1]
	lastT := (last.Time - origin) / overlay.DayMillis
	var p overlay.Prediction
	p.Path = append(p.Path, overlay.Point{X: last.Time, Y: last.Close})
	for d := 1; d <= cfg.Horizon; d++ {
		x := last.Time + float64(d)*overlay.DayMillis
		y := eval(lastT + float64(d))
		p.Path = append(p.Path, overlay.Point{X: x, Y: y})
		p.Upper = append(p.Upper, overlay.Point{X: x, Y: y + band})
		p.Lower = append(p.Lower, overlay.Point{X: x, Y: y - band})
	}
	target := p.Path[len(p.Path)-1]
	p.Target = &target
	p.Label = fmt.Sprintf("Target %dd: %s", cfg.Horizon, decimal.NewFromFloat(target.Y).StringFixed(2))
	return p, nil
}
