// Package tracking manages the recommendation lifecycle: open positions,
// price refreshes, snapshots, closing and expiry.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
	"github.com/aristath/ditm/internal/modules/allocation"
	"github.com/aristath/ditm/internal/modules/metrics"
)

// Service drives recommendation state transitions
type Service struct {
	repo   *Repository
	client domain.MarketDataClient
	log    zerolog.Logger
	now    func() time.Time
}

// NewService creates a tracking service
func NewService(repo *Repository, client domain.MarketDataClient, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		client: client,
		log:    log.With().Str("service", "tracking").Logger(),
		now:    time.Now,
	}
}

// RecordPosition persists one sized allocation as an open recommendation.
// An existing open recommendation for the same contract is refreshed in
// place, never duplicated.
func (s *Service) RecordPosition(scanID string, scanDate time.Time, position allocation.Position) (*domain.Recommendation, error) {
	c := position.Candidate

	iv := 0.0
	if c.IV != nil {
		iv = *c.IV
	}

	rec := domain.Recommendation{
		ScanID:             scanID,
		RecommendationDate: scanDate,
		Ticker:             c.Ticker,
		StockPriceAtRec:    c.UnderlyingPrice,
		Strike:             c.Strike,
		Expiration:         c.Expiration,
		DTEAtRec:           c.DTE,
		EntryBid:           c.Bid,
		EntryAsk:           c.Ask,
		EntryMid:           c.Mid,
		DeltaAtRec:         c.Delta,
		IVAtRec:            iv,
		Contracts:          position.Contracts,
		TotalCost:          position.TotalCost,
		EquivShares:        position.EquivShares,
		CostPerShare:       c.CostPerShare,
		Score:              c.Score,
		Status:             domain.StatusOpen,
	}

	id, err := s.repo.CreateOrUpdate(rec)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(id)
}

// RefreshResult summarizes one refresh pass over open recommendations
type RefreshResult struct {
	Refreshed int               `json:"refreshed"`
	Expired   int               `json:"expired"`
	Failed    map[string]string `json:"failed"`
}

// RefreshAll fetches current quotes for every open recommendation, appends
// a snapshot and recomputes unrealized P&L. A recommendation observed past
// expiry transitions to expired with its premium written off. Re-running
// with unchanged quotes produces identical snapshot values.
func (s *Service) RefreshAll(ctx context.Context) (*RefreshResult, error) {
	open, err := s.repo.List(domain.StatusOpen)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{Failed: make(map[string]string)}
	for i := range open {
		rec := &open[i]
		if err := s.refreshOne(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("id", rec.ID).Str("ticker", rec.Ticker).Msg("Refresh failed")
			result.Failed[rec.Ticker] = err.Error()
			continue
		}
		if rec.Status == domain.StatusExpired {
			result.Expired++
		} else {
			result.Refreshed++
		}
	}

	s.log.Info().
		Int("refreshed", result.Refreshed).
		Int("expired", result.Expired).
		Int("failed", len(result.Failed)).
		Msg("Refresh pass complete")
	return result, nil
}

// Refresh refreshes a single recommendation by id
func (s *Service) Refresh(ctx context.Context, id string) (*domain.Recommendation, error) {
	rec, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("recommendation %s is %s, no further refreshes", id, rec.Status)
	}
	if err := s.refreshOne(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) refreshOne(ctx context.Context, rec *domain.Recommendation) error {
	now := s.now().UTC()

	if metrics.DaysToExpiration(rec.Expiration, now) <= 0 {
		return s.expire(rec, now)
	}

	contract, err := s.client.GetContract(ctx, rec.Ticker, rec.Strike, rec.Expiration.Format(dateFormat))
	if err != nil {
		return err
	}

	mid := (contract.Bid + contract.Ask) / 2
	value := mid * float64(rec.Contracts) * domain.ContractsPerLot
	pnl := value - rec.TotalCost
	pnlPct := 0.0
	if rec.TotalCost > 0 {
		pnlPct = pnl / rec.TotalCost * 100
	}

	snap := domain.PositionSnapshot{
		RecommendationID: rec.ID,
		Timestamp:        now,
		StockPrice:       contract.UnderlyingPrice,
		OptionBid:        contract.Bid,
		OptionAsk:        contract.Ask,
		OptionMid:        mid,
		Delta:            contract.Delta,
		Value:            value,
		PnL:              pnl,
		PnLPct:           pnlPct,
	}
	if err := s.repo.AddSnapshot(snap); err != nil {
		return err
	}

	rec.CurrentBid = &contract.Bid
	rec.CurrentAsk = &contract.Ask
	rec.CurrentMid = &mid
	rec.StockCurrent = &contract.UnderlyingPrice
	rec.DeltaCurrent = &contract.Delta
	rec.CurrentValue = &value
	rec.UnrealizedPnL = &pnl
	rec.UnrealizedPnLPct = &pnlPct
	rec.LastUpdated = &now

	return s.repo.UpdateCurrentState(rec)
}

// expire writes off an open recommendation observed past its expiration
func (s *Service) expire(rec *domain.Recommendation, now time.Time) error {
	value := 0.0
	pnl := -rec.TotalCost
	pnlPct := -100.0

	rec.CurrentValue = &value
	rec.UnrealizedPnL = &pnl
	rec.UnrealizedPnLPct = &pnlPct
	rec.LastUpdated = &now
	if err := s.repo.UpdateCurrentState(rec); err != nil {
		return err
	}

	if err := s.repo.Terminate(rec.ID, domain.StatusExpired, "expired worthless", now); err != nil {
		return err
	}
	rec.Status = domain.StatusExpired
	rec.ClosedDate = &now
	rec.CloseReason = "expired worthless"

	s.log.Info().Str("id", rec.ID).Str("ticker", rec.Ticker).Msg("Recommendation expired")
	return nil
}

// Close moves an open recommendation to closed with a user-supplied reason.
// The last refreshed value stands as the realized outcome.
func (s *Service) Close(id, reason string) (*domain.Recommendation, error) {
	rec, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("recommendation %s already %s", id, rec.Status)
	}

	now := s.now().UTC()
	if err := s.repo.Terminate(id, domain.StatusClosed, reason, now); err != nil {
		return nil, err
	}

	s.log.Info().Str("id", id).Str("ticker", rec.Ticker).Str("reason", reason).Msg("Recommendation closed")
	return s.repo.Get(id)
}

// Get returns one recommendation with its snapshot history
func (s *Service) Get(id string) (*domain.Recommendation, []domain.PositionSnapshot, error) {
	rec, err := s.repo.Get(id)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := s.repo.GetSnapshots(id)
	if err != nil {
		return nil, nil, err
	}
	return rec, snaps, nil
}

// List returns recommendations filtered by status ("" for all)
func (s *Service) List(status domain.RecommendationStatus) ([]domain.Recommendation, error) {
	return s.repo.List(status)
}
