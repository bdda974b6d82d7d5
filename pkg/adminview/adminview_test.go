package adminview

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nexosql-backend/pkg/apitypes"
)

func TestTopEngines(t *testing.T) {
	in := []apitypes.EngineCount{
		{Engine: "sqlite", Count: 2},
		{Engine: "postgresql", Count: 9},
		{Engine: "mysql", Count: 2},
		{Engine: "mariadb", Count: 1},
	}
	got := TopEngines(in, 3)
	assert.Equal(t, []apitypes.EngineCount{
		{Engine: "postgresql", Count: 9},
		{Engine: "mysql", Count: 2},
		{Engine: "sqlite", Count: 2},
	}, got)
	assert.Equal(t, "sqlite", in[0].Engine, "input is not reordered")
	assert.Len(t, TopEngines(in, 0), 4)
}

func TestScaleToMax(t *testing.T) {
	assert.Equal(t, []float64{100, 50, 0}, ScaleToMax([]int{8, 4, 0}))
	assert.Equal(t, []float64{0, 0}, ScaleToMax([]int{0, 0}))
	assert.Empty(t, ScaleToMax(nil))
}

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "Ene 2026", MonthLabel("2026-01"))
	assert.Equal(t, "Dic 2025", MonthLabel("2025-12"))
	assert.Equal(t, "bogus", MonthLabel("bogus"))
}

func TestMonthlyBars(t *testing.T) {
	months := []apitypes.MonthlyMetric{
		{Month: "2026-08", Queries: 10},
		{Month: "2026-09", Queries: 40},
	}
	assert.Equal(t, []Bar{
		{Label: "Ago 2026", Value: 10, Percent: 25},
		{Label: "Sep 2026", Value: 40, Percent: 100},
	}, MonthlyBars(months, Queries))
}

func TestEngineBars(t *testing.T) {
	got := EngineBars([]apitypes.EngineCount{{Engine: "mysql", Count: 1}, {Engine: "postgresql", Count: 4}}, 5)
	assert.Equal(t, "postgresql", got[0].Label)
	assert.Equal(t, 25.0, got[1].Percent)
}
