package metrics

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ditm/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func deepITMContract() domain.Contract {
	return domain.Contract{
		Ticker:          "AAPL",
		UnderlyingPrice: 225.50,
		Strike:          200,
		Expiration:      time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC),
		Bid:             27.80,
		Ask:             28.20,
		Delta:           0.892,
		IV:              floatPtr(0.24),
		OpenInterest:    5243,
	}
}

func TestComputeDeepITM(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	asOf := time.Date(2025, 8, 30, 15, 0, 0, 0, time.UTC)

	cand, err := calc.Compute(deepITMContract(), asOf)
	require.NoError(t, err)

	assert.InDelta(t, 25.50, cand.Intrinsic, 1e-9)
	assert.InDelta(t, 2.70, cand.Extrinsic, 1e-9)
	assert.InDelta(t, 0.904, cand.IntrinsicPct, 0.001)
	assert.InDelta(t, 0.0957, cand.ExtrinsicPct, 0.0001)
	assert.InDelta(t, 0.0142, cand.SpreadPct, 0.0001)
	assert.InDelta(t, 28.00, cand.Mid, 1e-9)
	assert.InDelta(t, 225.50/28.20, cand.LeverageFactor, 1e-9)
	assert.InDelta(t, 228.20, cand.Breakeven, 1e-9)
	assert.Equal(t, 180, cand.DTE)

	// Round-trip identity: cost_per_share * delta * 100 = ask
	assert.InDelta(t, cand.Ask, cand.CostPerShare*cand.Delta*domain.ContractsPerLot, 1e-9)
}

func TestComputeRejectsZeroAsk(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	contract := deepITMContract()
	contract.Ask = 0

	_, err := calc.Compute(contract, time.Now())
	require.Error(t, err)

	var invalid *domain.InvalidContractError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "ask", invalid.Field)
	assert.ErrorIs(t, err, domain.ErrInvalidContract)
}

func TestComputeRejectsNonPositiveDelta(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	for _, delta := range []float64{0, -0.5} {
		contract := deepITMContract()
		contract.Delta = delta

		_, err := calc.Compute(contract, time.Now())
		var invalid *domain.InvalidContractError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "delta", invalid.Field)
	}
}

func TestComputeRejectsCrossedQuote(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	contract := deepITMContract()
	contract.Bid = 30
	contract.Ask = 28.20

	_, err := calc.Compute(contract, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidContract)
}

func TestExtrinsicFlooredAtZero(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	contract := deepITMContract()
	// Ask below intrinsic value
	contract.Ask = 25.00
	contract.Bid = 24.50

	cand, err := calc.Compute(contract, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, cand.Extrinsic)
	assert.Equal(t, 0.0, cand.ExtrinsicPct)
}

func TestOTMContractHasZeroIntrinsic(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())
	contract := deepITMContract()
	contract.Strike = 250

	cand, err := calc.Compute(contract, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, cand.Intrinsic)
	assert.InDelta(t, 28.20, cand.Extrinsic, 1e-9)
	assert.InDelta(t, 1.0, cand.ExtrinsicPct, 1e-9)
}

func TestComputeChainDropsInvalid(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	good := deepITMContract()
	bad := deepITMContract()
	bad.Ask = 0

	candidates := calc.ComputeChain([]domain.Contract{good, bad}, time.Now())
	require.Len(t, candidates, 1)
	assert.Equal(t, good.Strike, candidates[0].Strike)
}

func TestDaysToExpiration(t *testing.T) {
	asOf := time.Date(2025, 8, 30, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysToExpiration(time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC), asOf))
	assert.Equal(t, 1, DaysToExpiration(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), asOf))
	assert.Equal(t, -1, DaysToExpiration(time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC), asOf))
}
