// Package metrics derives per-contract valuation metrics from raw gateway
// quotes.
package metrics

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
)

// Calculator turns raw contracts into scored candidates-to-be.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a metrics calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("service", "metrics").Logger(),
	}
}

// Compute derives all valuation metrics for a single contract as of asOf.
// Returns an InvalidContractError for quotes that cannot be priced.
func (c *Calculator) Compute(contract domain.Contract, asOf time.Time) (*domain.Candidate, error) {
	if contract.Ask <= 0 {
		return nil, &domain.InvalidContractError{Ticker: contract.Ticker, Field: "ask", Value: contract.Ask}
	}
	if contract.Bid <= 0 {
		return nil, &domain.InvalidContractError{Ticker: contract.Ticker, Field: "bid", Value: contract.Bid}
	}
	if contract.Bid > contract.Ask {
		return nil, &domain.InvalidContractError{Ticker: contract.Ticker, Field: "bid", Value: contract.Bid}
	}
	if contract.Delta <= 0 {
		return nil, &domain.InvalidContractError{Ticker: contract.Ticker, Field: "delta", Value: contract.Delta}
	}
	if contract.UnderlyingPrice <= 0 {
		return nil, &domain.InvalidContractError{Ticker: contract.Ticker, Field: "underlying_price", Value: contract.UnderlyingPrice}
	}

	mid := (contract.Bid + contract.Ask) / 2

	intrinsic := math.Max(0, contract.UnderlyingPrice-contract.Strike)
	// Quotes can sit below intrinsic; extrinsic is floored at zero rather
	// than carried negative.
	extrinsic := math.Max(0, contract.Ask-intrinsic)

	candidate := &domain.Candidate{
		Ticker:          contract.Ticker,
		UnderlyingPrice: contract.UnderlyingPrice,
		Strike:          contract.Strike,
		Expiration:      contract.Expiration,
		Bid:             contract.Bid,
		Ask:             contract.Ask,
		Mid:             mid,
		Delta:           contract.Delta,
		IV:              contract.IV,
		OpenInterest:    contract.OpenInterest,

		Intrinsic:      intrinsic,
		Extrinsic:      extrinsic,
		IntrinsicPct:   intrinsic / contract.Ask,
		ExtrinsicPct:   extrinsic / contract.Ask,
		SpreadPct:      (contract.Ask - contract.Bid) / mid,
		DTE:            DaysToExpiration(contract.Expiration, asOf),
		LeverageFactor: contract.UnderlyingPrice / contract.Ask,
		CostPerShare:   contract.Ask / (contract.Delta * domain.ContractsPerLot),
		Breakeven:      contract.Strike + contract.Ask,
	}

	return candidate, nil
}

// ComputeChain runs Compute over a full chain, dropping unpriceable contracts.
// Dropped contracts are logged at debug level and never fail the chain.
func (c *Calculator) ComputeChain(contracts []domain.Contract, asOf time.Time) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(contracts))
	for _, contract := range contracts {
		candidate, err := c.Compute(contract, asOf)
		if err != nil {
			c.log.Debug().
				Err(err).
				Str("ticker", contract.Ticker).
				Float64("strike", contract.Strike).
				Msg("Dropping unpriceable contract")
			continue
		}
		candidates = append(candidates, *candidate)
	}
	return candidates
}

// DaysToExpiration counts whole calendar days from asOf to expiration,
// truncating both sides to dates. Same-day expiration is 0.
func DaysToExpiration(expiration, asOf time.Time) int {
	expDay := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	asOfDay := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(expDay.Sub(asOfDay).Hours() / 24)
}
