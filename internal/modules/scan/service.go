// Package scan orchestrates the full screening pipeline: fetch chains,
// derive metrics, filter, score, allocate and persist.
package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
	"github.com/aristath/ditm/internal/modules/allocation"
	"github.com/aristath/ditm/internal/modules/metrics"
	"github.com/aristath/ditm/internal/modules/presets"
	"github.com/aristath/ditm/internal/modules/scoring"
)

// RecommendationRecorder persists one sized position as an open
// recommendation. Implemented by the tracking service.
type RecommendationRecorder interface {
	RecordPosition(scanID string, scanDate time.Time, position allocation.Position) (*domain.Recommendation, error)
}

// Request is one scan invocation
type Request struct {
	Tickers       []string `json:"tickers"`
	TargetCapital float64  `json:"target_capital"`
	PresetName    string   `json:"preset_name"`
}

// Summary aggregates the allocation outcome
type Summary struct {
	TotalInvested     float64 `json:"total_invested"`
	TotalEquivShares  float64 `json:"total_equiv_shares"`
	StockPurchaseCost float64 `json:"stock_purchase_cost"`
	Savings           float64 `json:"savings"`
	CapitalEfficiency float64 `json:"capital_efficiency"`
	AvgLeverage       float64 `json:"avg_leverage"`
	SlicePerTicker    float64 `json:"slice_per_ticker"`
}

// Result is the full outcome of one scan, returned to callers and cached.
type Result struct {
	ScanID          string                  `json:"scan_id"`
	ScanDate        time.Time               `json:"scan_date"`
	PresetName      string                  `json:"preset_name"`
	TargetCapital   float64                 `json:"target_capital"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	// NoPosition lists tickers whose best candidate could not afford one
	// contract within the budget slice.
	NoPosition []string `json:"no_position"`
	// NoCandidates lists tickers screened successfully with nothing eligible.
	NoCandidates []string           `json:"no_candidates"`
	Failed       map[string]string  `json:"failed"`
	Summary      Summary            `json:"summary"`
	Candidates   []domain.Candidate `json:"candidates"`
}

// Service runs scans
type Service struct {
	client    domain.MarketDataClient
	calc      *metrics.Calculator
	library   *presets.Library
	scorer    *scoring.Scorer
	allocator *allocation.Allocator
	repo      *Repository
	cache     *Cache
	recorder  RecommendationRecorder
	workers   int
	log       zerolog.Logger
}

// NewService creates a scan service
func NewService(
	client domain.MarketDataClient,
	calc *metrics.Calculator,
	library *presets.Library,
	scorer *scoring.Scorer,
	allocator *allocation.Allocator,
	repo *Repository,
	cache *Cache,
	recorder RecommendationRecorder,
	workers int,
	log zerolog.Logger,
) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		client:    client,
		calc:      calc,
		library:   library,
		scorer:    scorer,
		allocator: allocator,
		repo:      repo,
		cache:     cache,
		recorder:  recorder,
		workers:   workers,
		log:       log.With().Str("service", "scan").Logger(),
	}
}

type tickerOutcome struct {
	ticker     string
	candidates []domain.Candidate
	err        error
}

// Run executes one scan. Per-ticker failures never abort the scan; the
// allocator only runs once every ticker has reported. Context cancellation
// marks unfetched tickers as failed and returns a partial result.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	preset, err := s.library.Get(req.PresetName)
	if err != nil {
		return nil, err
	}

	scanID := uuid.New().String()
	scanDate := time.Now().UTC()

	s.log.Info().
		Str("scan_id", scanID).
		Strs("tickers", req.Tickers).
		Str("preset", preset.Name).
		Float64("capital", req.TargetCapital).
		Msg("Starting scan")

	if err := s.repo.CreateScan(domain.Scan{
		ID:            scanID,
		ScanDate:      scanDate,
		Tickers:       req.Tickers,
		PresetName:    preset.Name,
		Thresholds:    preset.Thresholds,
		TargetCapital: req.TargetCapital,
	}); err != nil {
		return nil, err
	}

	outcomes := s.screenTickers(ctx, req.Tickers, scanDate)

	result := &Result{
		ScanID:          scanID,
		ScanDate:        scanDate,
		PresetName:      preset.Name,
		TargetCapital:   req.TargetCapital,
		Recommendations: make([]domain.Recommendation, 0),
		NoPosition:      make([]string, 0),
		NoCandidates:    make([]string, 0),
		Failed:          make(map[string]string),
	}

	// Best eligible candidate per ticker under the active preset
	best := make(map[string]domain.Candidate)
	allCandidates := make([]domain.Candidate, 0)

	for _, outcome := range outcomes {
		if outcome.err != nil {
			result.Failed[outcome.ticker] = outcome.err.Error()
			continue
		}

		eligible := make([]domain.Candidate, 0, len(outcome.candidates))
		for _, c := range outcome.candidates {
			if presets.Matches(c, preset.Thresholds) {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			result.NoCandidates = append(result.NoCandidates, outcome.ticker)
			continue
		}

		s.scorer.Rank(eligible, preset.Thresholds)
		best[outcome.ticker] = eligible[0]
		allCandidates = append(allCandidates, eligible...)
	}
	sort.Strings(result.NoCandidates)

	allocated := s.allocator.Allocate(best, req.TargetCapital, len(req.Tickers))
	result.NoPosition = allocated.SkippedTickers
	result.Summary = Summary{
		TotalInvested:     allocated.TotalInvested,
		TotalEquivShares:  allocated.TotalShares,
		StockPurchaseCost: allocated.StockPurchaseCost,
		Savings:           allocated.Savings,
		CapitalEfficiency: allocated.CapitalEfficiency,
		AvgLeverage:       allocated.AvgLeverage,
		SlicePerTicker:    allocated.SlicePerTicker,
	}

	for _, position := range allocated.Positions {
		rec, err := s.recorder.RecordPosition(scanID, scanDate, position)
		if err != nil {
			s.log.Error().Err(err).Str("ticker", position.Candidate.Ticker).Msg("Failed to record recommendation")
			result.Failed[position.Candidate.Ticker] = err.Error()
			continue
		}
		result.Recommendations = append(result.Recommendations, *rec)
		markSelected(allCandidates, position.Candidate)
	}

	result.Candidates = allCandidates

	if err := s.repo.SaveCandidates(scanID, scanDate, allCandidates); err != nil {
		s.log.Error().Err(err).Str("scan_id", scanID).Msg("Failed to persist candidates")
	}
	if err := s.repo.CompleteScan(scanID, len(allCandidates), len(result.Recommendations), result.Failed); err != nil {
		s.log.Error().Err(err).Str("scan_id", scanID).Msg("Failed to finalize scan")
	}
	if err := s.cache.StoreLatest(result); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache scan result")
	}
	if len(result.Failed) < len(req.Tickers) {
		if err := s.cache.RecordFetchSuccess(scanDate); err != nil {
			s.log.Warn().Err(err).Msg("Failed to record fetch time")
		}
	}

	s.log.Info().
		Str("scan_id", scanID).
		Int("candidates", len(allCandidates)).
		Int("recommendations", len(result.Recommendations)).
		Int("failed", len(result.Failed)).
		Msg("Scan complete")

	return result, nil
}

// screenTickers fetches and screens every ticker through a bounded worker
// pool. One ticker's failure never blocks another's progress.
func (s *Service) screenTickers(ctx context.Context, tickers []string, asOf time.Time) []tickerOutcome {
	jobs := make(chan string)
	results := make(chan tickerOutcome, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				results <- s.screenOne(ctx, ticker, asOf)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ticker := range tickers {
			select {
			case jobs <- ticker:
			case <-ctx.Done():
				results <- tickerOutcome{ticker: ticker, err: ctx.Err()}
			}
		}
	}()

	outcomes := make([]tickerOutcome, 0, len(tickers))
	for i := 0; i < len(tickers); i++ {
		outcomes = append(outcomes, <-results)
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].ticker < outcomes[j].ticker })
	return outcomes
}

func (s *Service) screenOne(ctx context.Context, ticker string, asOf time.Time) tickerOutcome {
	contracts, err := s.client.GetCallChain(ctx, ticker)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Chain fetch failed")
		return tickerOutcome{ticker: ticker, err: err}
	}

	candidates := s.calc.ComputeChain(contracts, asOf)
	for i := range candidates {
		candidates[i].MatchedPresets = s.library.MatchAll(candidates[i])
	}

	return tickerOutcome{ticker: ticker, candidates: candidates}
}

func markSelected(candidates []domain.Candidate, selected domain.Candidate) {
	for i := range candidates {
		if candidates[i].Ticker == selected.Ticker &&
			candidates[i].Strike == selected.Strike &&
			candidates[i].Expiration.Equal(selected.Expiration) {
			candidates[i].Selected = true
			return
		}
	}
}
