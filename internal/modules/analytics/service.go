package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
	"github.com/aristath/ditm/internal/modules/metrics"
	"github.com/aristath/ditm/internal/modules/tracking"
	"github.com/aristath/ditm/pkg/formulas"
)

// Query filters a performance report
type Query struct {
	Preset string     `json:"preset,omitempty"`
	Ticker string     `json:"ticker,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// Report is the full performance report
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Query       Query     `json:"query"`

	OpenCount    int     `json:"open_count"`
	ClosedCount  int     `json:"closed_count"`
	ExpiredCount int     `json:"expired_count"`
	TotalCost    float64 `json:"total_cost"`

	Metrics         RiskMetrics    `json:"metrics"`
	Positions       []PositionPerf `json:"positions"`
	TopPerformers   []PositionPerf `json:"top_performers"`
	WorstPerformers []PositionPerf `json:"worst_performers"`
}

// PositionDetail is one recommendation with its full observation history
type PositionDetail struct {
	Recommendation domain.Recommendation     `json:"recommendation"`
	Snapshots      []domain.PositionSnapshot `json:"snapshots"`
	// SmoothedValue is an EMA over the snapshot value series, nil when the
	// history is too short.
	SmoothedValue []float64 `json:"smoothed_value,omitempty"`
}

const performerListSize = 5
const valueSmoothingPeriod = 5

// Service produces performance reports from recommendation history
type Service struct {
	repo   *tracking.Repository
	engine *Engine
	log    zerolog.Logger
	now    func() time.Time
}

// NewService creates an analytics service
func NewService(repo *tracking.Repository, engine *Engine, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		log:    log.With().Str("service", "analytics").Logger(),
		now:    time.Now,
	}
}

// Report builds the filtered performance report. Positions that have never
// been priced since entry contribute zero P&L.
func (s *Service) Report(query Query) (*Report, error) {
	var recs []domain.Recommendation
	var err error
	if query.Preset != "" {
		recs, err = s.repo.ListByPreset(query.Preset)
	} else {
		recs, err = s.repo.List("")
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	report := &Report{
		GeneratedAt: now,
		Query:       query,
		Positions:   make([]PositionPerf, 0, len(recs)),
	}

	for _, rec := range recs {
		if !s.matches(rec, query) {
			continue
		}

		switch rec.Status {
		case domain.StatusOpen:
			report.OpenCount++
		case domain.StatusClosed:
			report.ClosedCount++
		case domain.StatusExpired:
			report.ExpiredCount++
		}
		report.TotalCost += rec.TotalCost

		report.Positions = append(report.Positions, s.toPerf(rec, now))
	}

	report.Metrics = s.engine.Compute(report.Positions)
	report.TopPerformers = topBy(report.Positions, performerListSize, func(a, b PositionPerf) bool {
		return a.PnLPct > b.PnLPct
	})
	report.WorstPerformers = topBy(report.Positions, performerListSize, func(a, b PositionPerf) bool {
		return a.PnLPct < b.PnLPct
	})

	s.log.Debug().
		Int("positions", len(report.Positions)).
		Str("preset", query.Preset).
		Msg("Performance report generated")

	return report, nil
}

// Detail loads one position with its snapshot history and a smoothed
// value series.
func (s *Service) Detail(id string) (*PositionDetail, error) {
	rec, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	snaps, err := s.repo.GetSnapshots(id)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(snaps))
	for i, snap := range snaps {
		values[i] = snap.Value
	}

	return &PositionDetail{
		Recommendation: *rec,
		Snapshots:      snaps,
		SmoothedValue:  formulas.EMA(values, valueSmoothingPeriod),
	}, nil
}

func (s *Service) matches(rec domain.Recommendation, query Query) bool {
	if query.Ticker != "" && !strings.EqualFold(rec.Ticker, query.Ticker) {
		return false
	}
	if query.From != nil && rec.RecommendationDate.Before(*query.From) {
		return false
	}
	if query.To != nil && rec.RecommendationDate.After(*query.To) {
		return false
	}
	return true
}

func (s *Service) toPerf(rec domain.Recommendation, now time.Time) PositionPerf {
	perf := PositionPerf{
		ID:                 rec.ID,
		Ticker:             rec.Ticker,
		Strike:             rec.Strike,
		Expiration:         rec.Expiration,
		Status:             string(rec.Status),
		RecommendationDate: rec.RecommendationDate,
		TotalCost:          rec.TotalCost,
		CurrentValue:       rec.TotalCost,
	}

	if rec.CurrentValue != nil {
		perf.CurrentValue = *rec.CurrentValue
		perf.PnL = perf.CurrentValue - rec.TotalCost
		if rec.TotalCost > 0 {
			perf.PnLPct = perf.PnL / rec.TotalCost * 100
		}
	}

	end := now
	if rec.ClosedDate != nil {
		end = *rec.ClosedDate
	}
	perf.DaysHeld = metrics.DaysToExpiration(end, rec.RecommendationDate)
	return perf
}

// topBy returns the first n positions under the given ordering
func topBy(positions []PositionPerf, n int, less func(a, b PositionPerf) bool) []PositionPerf {
	sorted := make([]PositionPerf, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
