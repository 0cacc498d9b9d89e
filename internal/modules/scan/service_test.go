package scan

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/ditm/internal/database"
	"github.com/aristath/ditm/internal/domain"
	"github.com/aristath/ditm/internal/modules/allocation"
	"github.com/aristath/ditm/internal/modules/metrics"
	"github.com/aristath/ditm/internal/modules/presets"
	"github.com/aristath/ditm/internal/modules/scoring"
)

type fakeGateway struct {
	chains map[string][]domain.Contract
	errs   map[string]error
}

func (g *fakeGateway) GetQuote(_ context.Context, ticker string) (float64, error) {
	return 0, domain.ErrNotFound
}

func (g *fakeGateway) GetCallChain(_ context.Context, ticker string) ([]domain.Contract, error) {
	if err, ok := g.errs[ticker]; ok {
		return nil, err
	}
	return g.chains[ticker], nil
}

func (g *fakeGateway) GetContract(_ context.Context, ticker string, strike float64, expiration string) (*domain.Contract, error) {
	return nil, domain.ErrNotFound
}

type fakeRecorder struct {
	recorded []allocation.Position
	failFor  map[string]error
}

func (r *fakeRecorder) RecordPosition(scanID string, scanDate time.Time, position allocation.Position) (*domain.Recommendation, error) {
	ticker := position.Candidate.Ticker
	if err, ok := r.failFor[ticker]; ok {
		return nil, err
	}
	r.recorded = append(r.recorded, position)
	return &domain.Recommendation{
		ID:                 uuid.New().String(),
		ScanID:             scanID,
		RecommendationDate: scanDate,
		Ticker:             ticker,
		Strike:             position.Candidate.Strike,
		Expiration:         position.Candidate.Expiration,
		Contracts:          position.Contracts,
		TotalCost:          position.TotalCost,
		Status:             domain.StatusOpen,
	}, nil
}

func newTestService(t *testing.T, gateway *fakeGateway, recorder *fakeRecorder) (*Service, *Repository, *Cache) {
	t.Helper()

	log := zerolog.Nop()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(database.Schema("recommendations"))
	require.NoError(t, err)

	cacheDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	_, err = cacheDB.Exec(database.Schema("cache"))
	require.NoError(t, err)

	library, err := presets.NewLibrary("", log)
	require.NoError(t, err)

	repo := NewRepository(db, log)
	cache := NewCache(cacheDB, log)

	svc := NewService(
		gateway,
		metrics.NewCalculator(log),
		library,
		scoring.NewDefaultScorer(),
		allocation.NewAllocator(log),
		repo,
		cache,
		recorder,
		2,
		log,
	)
	return svc, repo, cache
}

func ditmContract(ticker string, strike float64) domain.Contract {
	iv := 0.22
	return domain.Contract{
		Ticker:          ticker,
		UnderlyingPrice: strike + 25.50,
		Strike:          strike,
		Expiration:      time.Now().UTC().AddDate(0, 6, 0),
		Bid:             27.80,
		Ask:             28.20,
		Delta:           0.892,
		IV:              &iv,
		OpenInterest:    1500,
	}
}

func otmContract(ticker string) domain.Contract {
	iv := 0.55
	return domain.Contract{
		Ticker:          ticker,
		UnderlyingPrice: 100,
		Strike:          120,
		Expiration:      time.Now().UTC().AddDate(0, 2, 0),
		Bid:             1.00,
		Ask:             1.10,
		Delta:           0.20,
		IV:              &iv,
		OpenInterest:    800,
	}
}

func TestRunRecordsRecommendations(t *testing.T) {
	gateway := &fakeGateway{chains: map[string][]domain.Contract{
		"AAPL": {ditmContract("AAPL", 200)},
		"MSFT": {ditmContract("MSFT", 400)},
	}}
	recorder := &fakeRecorder{}
	svc, repo, cache := newTestService(t, gateway, recorder)

	result, err := svc.Run(context.Background(), Request{
		Tickers:       []string{"AAPL", "MSFT"},
		TargetCapital: 20000,
		PresetName:    "conservative",
	})
	require.NoError(t, err)

	assert.Len(t, result.Recommendations, 2)
	assert.Len(t, recorder.recorded, 2)
	assert.Empty(t, result.Failed)
	assert.InDelta(t, 10000, result.Summary.SlicePerTicker, 1e-9)

	// Persisted scan row reflects the final counts.
	stored, err := repo.GetScan(result.ScanID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RecommendationsCount)
	assert.Equal(t, len(result.Candidates), stored.CandidatesCount)

	candidates, err := repo.GetCandidates(result.ScanID)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	selected := 0
	for _, c := range candidates {
		if c.Selected {
			selected++
		}
	}
	assert.Equal(t, 2, selected)

	// Latest scan is cached for fast retrieval.
	cached, err := cache.Latest()
	require.NoError(t, err)
	assert.Equal(t, result.ScanID, cached.ScanID)
	assert.Len(t, cached.Recommendations, 2)
}

func TestRunIsolatesTickerFailure(t *testing.T) {
	gateway := &fakeGateway{
		chains: map[string][]domain.Contract{"AAPL": {ditmContract("AAPL", 200)}},
		errs:   map[string]error{"FAIL": errors.New("gateway timeout")},
	}
	recorder := &fakeRecorder{}
	svc, _, _ := newTestService(t, gateway, recorder)

	result, err := svc.Run(context.Background(), Request{
		Tickers:       []string{"AAPL", "FAIL"},
		TargetCapital: 10000,
		PresetName:    "conservative",
	})
	require.NoError(t, err)

	assert.Len(t, result.Recommendations, 1)
	assert.Equal(t, "AAPL", result.Recommendations[0].Ticker)
	require.Contains(t, result.Failed, "FAIL")
	assert.Contains(t, result.Failed["FAIL"], "gateway timeout")

	// The failed ticker still reserves its slice of the budget.
	assert.InDelta(t, 5000, result.Summary.SlicePerTicker, 1e-9)
	assert.Equal(t, 1, result.Recommendations[0].Contracts)
}

func TestRunReportsNoCandidates(t *testing.T) {
	gateway := &fakeGateway{chains: map[string][]domain.Contract{
		"OTM": {otmContract("OTM")},
	}}
	svc, _, _ := newTestService(t, gateway, &fakeRecorder{})

	result, err := svc.Run(context.Background(), Request{
		Tickers:       []string{"OTM"},
		TargetCapital: 10000,
		PresetName:    "conservative",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Recommendations)
	assert.Equal(t, []string{"OTM"}, result.NoCandidates)
}

func TestRunReportsNoPosition(t *testing.T) {
	gateway := &fakeGateway{chains: map[string][]domain.Contract{
		"AAPL": {ditmContract("AAPL", 200)},
	}}
	svc, _, _ := newTestService(t, gateway, &fakeRecorder{})

	// One contract costs 2820; a 1000 budget affords none.
	result, err := svc.Run(context.Background(), Request{
		Tickers:       []string{"AAPL"},
		TargetCapital: 1000,
		PresetName:    "conservative",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Recommendations)
	assert.Equal(t, []string{"AAPL"}, result.NoPosition)
}

func TestRunUnknownPreset(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeGateway{}, &fakeRecorder{})

	_, err := svc.Run(context.Background(), Request{
		Tickers:    []string{"AAPL"},
		PresetName: "nonexistent",
	})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunRecorderFailureMarksTicker(t *testing.T) {
	gateway := &fakeGateway{chains: map[string][]domain.Contract{
		"AAPL": {ditmContract("AAPL", 200)},
	}}
	recorder := &fakeRecorder{failFor: map[string]error{"AAPL": errors.New("db locked")}}
	svc, _, _ := newTestService(t, gateway, recorder)

	result, err := svc.Run(context.Background(), Request{
		Tickers:       []string{"AAPL"},
		TargetCapital: 10000,
		PresetName:    "conservative",
	})
	require.NoError(t, err)

	assert.Empty(t, result.Recommendations)
	assert.Contains(t, result.Failed, "AAPL")
}

func TestRunCancelledContext(t *testing.T) {
	gateway := &fakeGateway{chains: map[string][]domain.Contract{
		"AAPL": {ditmContract("AAPL", 200)},
		"MSFT": {ditmContract("MSFT", 400)},
	}}
	svc, _, _ := newTestService(t, gateway, &fakeRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx, Request{
		Tickers:       []string{"AAPL", "MSFT"},
		TargetCapital: 10000,
		PresetName:    "conservative",
	})
	require.NoError(t, err)

	// Every ticker still reports: either screened or marked failed.
	total := len(result.Recommendations) + len(result.NoCandidates) +
		len(result.NoPosition) + len(result.Failed)
	assert.GreaterOrEqual(t, total, 2)
}
