// Package allocation sizes ranked candidates into whole-contract positions
// under a fixed capital budget.
package allocation

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
)

// Position is one sized allocation for a ticker's best candidate.
type Position struct {
	Candidate   domain.Candidate `json:"candidate"`
	Contracts   int              `json:"contracts"`
	TotalCost   float64          `json:"total_cost"`
	EquivShares float64          `json:"equiv_shares"`
}

// Result is the full output of one allocation pass.
type Result struct {
	Positions []Position `json:"positions"`
	// SkippedTickers could not afford a single contract of their best
	// candidate within the per-ticker slice. Not an error.
	SkippedTickers []string `json:"skipped_tickers"`
	SlicePerTicker float64  `json:"slice_per_ticker"`
	TotalInvested  float64  `json:"total_invested"`
	TotalShares    float64  `json:"total_equiv_shares"`
	// StockPurchaseCost is what the equivalent shares would cost outright.
	StockPurchaseCost float64 `json:"stock_purchase_cost"`
	// Savings is the capital kept in reserve versus buying the shares.
	Savings float64 `json:"savings"`
	// CapitalEfficiency is total invested over the stock purchase cost.
	CapitalEfficiency float64 `json:"capital_efficiency"`
	// AvgLeverage is the mean leverage factor across sized positions.
	AvgLeverage float64 `json:"avg_leverage"`
}

// Allocator splits a budget into equal per-ticker slices.
type Allocator struct {
	log zerolog.Logger
}

// NewAllocator creates an allocator
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{
		log: log.With().Str("service", "allocation").Logger(),
	}
}

// Allocate sizes each ticker's best eligible candidate within an equal slice
// of the budget. The slice divisor is tickerCount, the number of tickers the
// scan was asked for, so a ticker that failed to fetch or produced no
// eligible candidate still reserves its share of the budget. Tickers whose
// slice cannot afford one contract are skipped, not failed.
func (a *Allocator) Allocate(bestPerTicker map[string]domain.Candidate, budget float64, tickerCount int) Result {
	result := Result{
		Positions:      make([]Position, 0, len(bestPerTicker)),
		SkippedTickers: make([]string, 0),
	}
	if len(bestPerTicker) == 0 || budget <= 0 || tickerCount <= 0 {
		return result
	}

	result.SlicePerTicker = budget / float64(tickerCount)

	tickers := make([]string, 0, len(bestPerTicker))
	for ticker := range bestPerTicker {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	leverageSum := 0.0
	for _, ticker := range tickers {
		candidate := bestPerTicker[ticker]
		perContract := candidate.Ask * domain.ContractsPerLot

		contracts := int(math.Floor(result.SlicePerTicker / perContract))
		if contracts <= 0 {
			a.log.Info().
				Str("ticker", ticker).
				Float64("contract_cost", perContract).
				Float64("slice", result.SlicePerTicker).
				Msg("No position sized, contract exceeds slice")
			result.SkippedTickers = append(result.SkippedTickers, ticker)
			continue
		}

		position := Position{
			Candidate:   candidate,
			Contracts:   contracts,
			TotalCost:   float64(contracts) * perContract,
			EquivShares: float64(contracts) * domain.ContractsPerLot * candidate.Delta,
		}
		result.Positions = append(result.Positions, position)
		result.TotalInvested += position.TotalCost
		result.TotalShares += position.EquivShares
		result.StockPurchaseCost += position.EquivShares * candidate.UnderlyingPrice
		leverageSum += candidate.LeverageFactor
	}

	if result.StockPurchaseCost > 0 {
		result.CapitalEfficiency = result.TotalInvested / result.StockPurchaseCost
		result.Savings = result.StockPurchaseCost - result.TotalInvested
	}
	if len(result.Positions) > 0 {
		result.AvgLeverage = leverageSum / float64(len(result.Positions))
	}

	a.log.Info().
		Int("positions", len(result.Positions)).
		Int("skipped", len(result.SkippedTickers)).
		Float64("invested", result.TotalInvested).
		Msg("Allocation complete")

	return result
}
