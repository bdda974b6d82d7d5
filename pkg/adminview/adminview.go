// Package adminview reshapes the admin dashboard payload for display.
package adminview

import (
	"fmt"
	"sort"
	"time"

	"nexosql-backend/pkg/apitypes"
)

var monthNames = [...]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// Bar is one row of a bar chart. Percent is relative to the largest value
// in the same chart.
type Bar struct {
	Label   string
	Value   int
	Percent float64
}

// TopEngines returns the n most used engines, ties broken by name. n <= 0
// keeps them all.
func TopEngines(counts []apitypes.EngineCount, n int) []apitypes.EngineCount {
	out := append([]apitypes.EngineCount(nil), counts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Engine < out[j].Engine
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ScaleToMax maps each value to its percentage of the largest one. All
// zeros when the maximum is not positive.
func ScaleToMax(values []int) []float64 {
	peak := 0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	out := make([]float64, len(values))
	if peak <= 0 {
		return out
	}
	for i, v := range values {
		if v > 0 {
			out[i] = float64(v) * 100 / float64(peak)
		}
	}
	return out
}

// MonthLabel turns "2026-03" into "Mar 2026". Unparseable input is returned as is.
func MonthLabel(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}

func bars(labels []string, values []int) []Bar {
	pct := ScaleToMax(values)
	out := make([]Bar, len(values))
	for i := range values {
		out[i] = Bar{Label: labels[i], Value: values[i], Percent: pct[i]}
	}
	return out
}

// EngineBars charts the top n engines.
func EngineBars(counts []apitypes.EngineCount, n int) []Bar {
	top := TopEngines(counts, n)
	labels := make([]string, len(top))
	values := make([]int, len(top))
	for i, e := range top {
		labels[i], values[i] = e.Engine, e.Count
	}
	return bars(labels, values)
}

// MonthlyBars charts one series of the monthly metrics, in the order given.
func MonthlyBars(months []apitypes.MonthlyMetric, pick func(apitypes.MonthlyMetric) int) []Bar {
	labels := make([]string, len(months))
	values := make([]int, len(months))
	for i, m := range months {
		labels[i], values[i] = MonthLabel(m.Month), pick(m)
	}
	return bars(labels, values)
}

// Series selectors for MonthlyBars.
var (
	Subscriptions      = func(m apitypes.MonthlyMetric) int { return m.Subscriptions }
	Cancellations      = func(m apitypes.MonthlyMetric) int { return m.Cancellations }
	Queries            = func(m apitypes.MonthlyMetric) int { return m.Queries }
	QueryCancellations = func(m apitypes.MonthlyMetric) int { return m.QueryCancellations }
	Connections        = func(m apitypes.MonthlyMetric) int { return m.Connections }
)
