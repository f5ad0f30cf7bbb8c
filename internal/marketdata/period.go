package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// DefaultPeriod is used when a request names none.
const DefaultPeriod = "1y"

// Period is a lookback window and the bar size served for it.
type Period struct {
	Name      string
	Lookback  func(now time.Time) time.Time
	TimeFrame marketdata.TimeFrame
	Interval  string
}

func years(n int) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return now.AddDate(-n, 0, 0) }
}

func months(n int) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return now.AddDate(0, -n, 0) }
}

func days(n int) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return now.AddDate(0, 0, -n) }
}

var periods = []Period{
	{Name: "1d", Lookback: days(1), TimeFrame: marketdata.NewTimeFrame(5, marketdata.Min), Interval: "5m"},
	{Name: "5d", Lookback: days(5), TimeFrame: marketdata.NewTimeFrame(15, marketdata.Min), Interval: "15m"},
	{Name: "1mo", Lookback: months(1), TimeFrame: marketdata.OneHour, Interval: "1h"},
	{Name: "3mo", Lookback: months(3), TimeFrame: marketdata.OneDay, Interval: "1d"},
	{Name: "6mo", Lookback: months(6), TimeFrame: marketdata.OneDay, Interval: "1d"},
	{Name: "1y", Lookback: years(1), TimeFrame: marketdata.OneDay, Interval: "1d"},
	{Name: "2y", Lookback: years(2), TimeFrame: marketdata.OneDay, Interval: "1d"},
	{Name: "5y", Lookback: years(5), TimeFrame: marketdata.OneDay, Interval: "1d"},
	{Name: "max", Lookback: years(20), TimeFrame: marketdata.NewTimeFrame(1, marketdata.Week), Interval: "1wk"},
}

// SupportedPeriods lists the accepted period names in ascending length.
func SupportedPeriods() []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.Name
	}
	return out
}

// ParsePeriod resolves a period name. An empty name selects DefaultPeriod.
func ParsePeriod(name string) (Period, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultPeriod
	}
	for _, p := range periods {
		if p.Name == name {
			return p, nil
		}
	}
	return Period{}, fmt.Errorf("%w %q (want one of %s)", ErrInvalidPeriod, name, strings.Join(SupportedPeriods(), ", "))
}
