package allocation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ditm/internal/domain"
)

func candidate(ticker string, ask, delta, underlying float64) domain.Candidate {
	return domain.Candidate{
		Ticker:          ticker,
		UnderlyingPrice: underlying,
		Ask:             ask,
		Delta:           delta,
		LeverageFactor:  underlying / ask,
	}
}

func TestAllocateTwoTickersOneAffordable(t *testing.T) {
	alloc := NewAllocator(zerolog.Nop())

	best := map[string]domain.Candidate{
		"X": candidate("X", 28.00, 0.90, 250),
		"Y": candidate("Y", 60.00, 0.85, 600),
	}

	result := alloc.Allocate(best, 10000, 2)

	assert.Equal(t, 5000.0, result.SlicePerTicker)
	require.Len(t, result.Positions, 1)
	assert.Equal(t, "X", result.Positions[0].Candidate.Ticker)
	assert.Equal(t, 1, result.Positions[0].Contracts)
	assert.Equal(t, 2800.0, result.Positions[0].TotalCost)
	assert.Equal(t, 90.0, result.Positions[0].EquivShares)
	assert.Equal(t, []string{"Y"}, result.SkippedTickers)
	assert.Equal(t, 2800.0, result.TotalInvested)
	assert.InDelta(t, 250.0/28.0, result.AvgLeverage, 1e-12)
}

func TestSliceDivisorIsRequestedTickerCount(t *testing.T) {
	alloc := NewAllocator(zerolog.Nop())

	// Two tickers were requested but only one survived screening. Its
	// slice stays half the budget, it does not absorb the other's share.
	best := map[string]domain.Candidate{
		"X": candidate("X", 28.20, 0.892, 225.50),
	}

	result := alloc.Allocate(best, 10000, 2)

	assert.Equal(t, 5000.0, result.SlicePerTicker)
	require.Len(t, result.Positions, 1)
	assert.Equal(t, 1, result.Positions[0].Contracts)
	assert.InDelta(t, 2820.0, result.Positions[0].TotalCost, 1e-9)
}

func TestAllocateNeverExceedsSlice(t *testing.T) {
	alloc := NewAllocator(zerolog.Nop())

	best := map[string]domain.Candidate{
		"A": candidate("A", 12.34, 0.88, 110),
		"B": candidate("B", 7.89, 0.82, 75),
		"C": candidate("C", 33.33, 0.91, 300),
	}

	result := alloc.Allocate(best, 25000, 3)
	slice := result.SlicePerTicker

	for _, p := range result.Positions {
		assert.LessOrEqual(t, p.TotalCost, slice)
		assert.GreaterOrEqual(t, p.Contracts, 1)
		assert.InDelta(t, float64(p.Contracts)*p.Candidate.Ask*domain.ContractsPerLot, p.TotalCost, 1e-9)
	}
}

func TestAllocateMultipleContracts(t *testing.T) {
	alloc := NewAllocator(zerolog.Nop())

	best := map[string]domain.Candidate{
		"X": candidate("X", 10.00, 0.90, 100),
	}

	result := alloc.Allocate(best, 5500, 1)
	require.Len(t, result.Positions, 1)
	assert.Equal(t, 5, result.Positions[0].Contracts)
	assert.Equal(t, 5000.0, result.Positions[0].TotalCost)
	assert.Equal(t, 450.0, result.Positions[0].EquivShares)
}

func TestCapitalEfficiency(t *testing.T) {
	alloc := NewAllocator(zerolog.Nop())

	best := map[string]domain.Candidate{
		"X": candidate("X", 28.00, 0.90, 250),
	}

	result := alloc.Allocate(best, 5000, 1)
	require.Len(t, result.Positions, 1)

	// 1 contract: $2800 invested controls 90 equivalent shares worth $22,500
	stockCost := 90.0 * 250.0
	assert.InDelta(t, 2800.0/stockCost, result.CapitalEfficiency, 1e-12)
	assert.Less(t, result.CapitalEfficiency, 1.0)
	assert.InDelta(t, stockCost, result.StockPurchaseCost, 1e-12)
	assert.InDelta(t, stockCost-2800.0, result.Savings, 1e-12)
}

func TestAllocateEmptyInputs(t *testing.T) {
	alloc := NewAllocator(zerolog.Nop())

	result := alloc.Allocate(nil, 10000, 2)
	assert.Empty(t, result.Positions)
	assert.Empty(t, result.SkippedTickers)
	assert.Zero(t, result.TotalInvested)

	result = alloc.Allocate(map[string]domain.Candidate{"X": candidate("X", 10, 0.9, 100)}, 0, 1)
	assert.Empty(t, result.Positions)
}
