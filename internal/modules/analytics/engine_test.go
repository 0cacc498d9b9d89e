package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position(day int, pnl, totalCost float64) PositionPerf {
	return PositionPerf{
		RecommendationDate: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		TotalCost:          totalCost,
		CurrentValue:       totalCost + pnl,
		PnL:                pnl,
		PnLPct:             pnl / totalCost * 100,
		DaysHeld:           30,
		Status:             "closed",
	}
}

func TestComputeFiveClosedPositions(t *testing.T) {
	engine := NewEngine(0)

	// P&L sequence +500, +600, -200, +450, -150 on a 10k cost basis each
	pnls := []float64{500, 600, -200, 450, -150}
	positions := make([]PositionPerf, 0, len(pnls))
	for i, pnl := range pnls {
		positions = append(positions, position(i+1, pnl, 10000))
	}

	m := engine.Compute(positions)

	assert.Equal(t, 5, m.Positions)
	assert.Equal(t, 3, m.Winners)
	assert.Equal(t, 2, m.Losers)

	require.True(t, m.WinRate.Valid)
	assert.InDelta(t, 0.6, m.WinRate.Value, 1e-12)

	require.True(t, m.Expectancy.Valid)
	assert.InDelta(t, 240.0, m.Expectancy.Value, 1e-9)

	require.True(t, m.ProfitFactor.Valid)
	assert.InDelta(t, 1550.0/350.0, m.ProfitFactor.Value, 1e-9)

	assert.InDelta(t, 1200.0, m.TotalPnL, 1e-9)

	// Win/loss ratio over percent returns: avg win 5.1667%, avg loss 1.75%
	require.True(t, m.WinLossRatio.Valid)
	assert.InDelta(t, (15.5/3.0)/(3.5/2.0), m.WinLossRatio.Value, 1e-9)

	require.True(t, m.Sharpe.Valid)
	require.True(t, m.Sortino.Valid)
	require.True(t, m.MaxDrawdown.Valid)
}

func TestStreaks(t *testing.T) {
	engine := NewEngine(0)

	// W W L W L in date order
	pnls := []float64{500, 600, -200, 450, -150}
	positions := make([]PositionPerf, 0, len(pnls))
	for i, pnl := range pnls {
		positions = append(positions, position(i+1, pnl, 10000))
	}

	m := engine.Compute(positions)
	assert.Equal(t, 2, m.MaxConsecutiveWins)
	assert.Equal(t, 1, m.MaxConsecutiveLosses)
}

func TestComputeEmptyInput(t *testing.T) {
	m := NewEngine(0).Compute(nil)

	assert.Equal(t, 0, m.Positions)
	assert.False(t, m.WinRate.Valid)
	assert.False(t, m.Sharpe.Valid)
	assert.False(t, m.MaxDrawdown.Valid)
	assert.False(t, m.Expectancy.Valid)
}

func TestProfitFactorUndefinedWithoutLosses(t *testing.T) {
	engine := NewEngine(0)

	positions := []PositionPerf{
		position(1, 500, 10000),
		position(2, 300, 10000),
	}

	m := engine.Compute(positions)
	assert.False(t, m.ProfitFactor.Valid)
	assert.False(t, m.WinLossRatio.Valid)
	assert.False(t, m.AvgLoss.Valid)
}

func TestSortinoUndefinedWithFewNegativeReturns(t *testing.T) {
	engine := NewEngine(0)

	// Exactly one losing position: no sample downside deviation exists
	positions := []PositionPerf{
		position(1, 500, 10000),
		position(2, -300, 10000),
		position(3, 200, 10000),
	}

	m := engine.Compute(positions)
	assert.False(t, m.Sortino.Valid)
	assert.True(t, m.Sharpe.Valid)
}

func TestSharpeUndefinedWithoutVariance(t *testing.T) {
	engine := NewEngine(0)

	positions := []PositionPerf{
		position(1, 500, 10000),
		position(2, 500, 10000),
	}

	m := engine.Compute(positions)
	assert.False(t, m.Sharpe.Valid)
}

func TestSharpeSubtractsRiskFreeRate(t *testing.T) {
	positions := []PositionPerf{
		position(1, 500, 10000),
		position(2, -300, 10000),
	}

	zero := NewEngine(0).Compute(positions)
	withRf := NewEngine(2.0).Compute(positions)

	require.True(t, zero.Sharpe.Valid)
	require.True(t, withRf.Sharpe.Valid)
	assert.Greater(t, zero.Sharpe.Value, withRf.Sharpe.Value)
}

func TestMaxDrawdownCompoundedCurve(t *testing.T) {
	// +10%, -20%, +5%: peak 1.10, trough 0.88, drawdown 20%
	returns := []float64{10, -20, 5}
	dd := maxDrawdown(returns)

	require.True(t, dd.Valid)
	assert.InDelta(t, 20.0, dd.Value, 1e-9)
}

func TestMaxDrawdownOrderDependent(t *testing.T) {
	engine := NewEngine(0)

	// Same P&L set; consecutive losses compound into a deeper drawdown
	// than losses separated by a win
	consecutive := []PositionPerf{
		position(1, -200, 10000),
		position(2, -150, 10000),
		position(3, 500, 10000),
	}
	separated := []PositionPerf{
		position(1, -200, 10000),
		position(2, 500, 10000),
		position(3, -150, 10000),
	}

	a := engine.Compute(consecutive)
	b := engine.Compute(separated)
	require.True(t, a.MaxDrawdown.Valid)
	require.True(t, b.MaxDrawdown.Valid)
	assert.Greater(t, a.MaxDrawdown.Value, b.MaxDrawdown.Value)
}

func TestMetricJSONNull(t *testing.T) {
	m := NewEngine(0).Compute(nil)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Nil(t, decoded["win_rate"])
	assert.Nil(t, decoded["sharpe_ratio"])
	assert.Nil(t, decoded["profit_factor"])
	assert.Equal(t, float64(0), decoded["total_pnl"])
}
