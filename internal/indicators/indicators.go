// Package indicators computes technical-indicator series over closing prices.
// Positions without enough history hold NaN so every output lines up with
// its input.
package indicators

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over period values.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = stat.Mean(values[i-period+1:i+1], nil)
	}
	return out
}

// EMA is the exponential moving average seeded with the SMA of the first
// period values.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	k := 2 / float64(period+1)
	prev := floats.Sum(values[:period]) / float64(period)
	out[period-1] = prev
	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// Bands is a Bollinger band triple.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns the period SMA and the bands mult population standard
// deviations around it.
func Bollinger(values []float64, period int, mult float64) Bands {
	b := Bands{
		Upper:  nanSlice(len(values)),
		Middle: nanSlice(len(values)),
		Lower:  nanSlice(len(values)),
	}
	if period <= 0 {
		return b
	}
	for i := period - 1; i < len(values); i++ {
		mean, std := stat.PopMeanStdDev(values[i-period+1:i+1], nil)
		b.Middle[i] = mean
		b.Upper[i] = mean + mult*std
		b.Lower[i] = mean - mult*std
	}
	return b
}

// RSI is Wilder's relative strength index.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = rsi(gain, loss)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := math.Max(d, 0), math.Max(-d, 0)
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
		out[i] = rsi(gain, loss)
	}
	return out
}

func rsi(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+gain/loss)
}
