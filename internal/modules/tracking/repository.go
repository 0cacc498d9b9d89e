package tracking

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
)

const (
	dateFormat = "2006-01-02"
)

// Repository handles CRUD operations for recommendations and their
// position snapshot histories. Rows are never deleted.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a tracking repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "tracking").Logger(),
	}
}

// CreateOrUpdate inserts a new open recommendation, or refreshes the entry
// terms of an existing open one for the same (ticker, strike, expiration).
// Returns the recommendation id either way.
func (r *Repository) CreateOrUpdate(rec domain.Recommendation) (string, error) {
	existing, err := r.FindOpen(rec.Ticker, rec.Strike, rec.Expiration)
	if err != nil {
		return "", fmt.Errorf("failed to check for open recommendation: %w", err)
	}

	if existing != nil {
		_, err := r.db.Exec(`
			UPDATE recommendations
			SET scan_id = ?, recommendation_date = ?, stock_price_at_rec = ?,
				dte_at_rec = ?, entry_bid = ?, entry_ask = ?, entry_mid = ?,
				delta_at_rec = ?, iv_at_rec = ?, contracts = ?, total_cost = ?,
				equiv_shares = ?, cost_per_share = ?, score = ?
			WHERE id = ?
		`,
			rec.ScanID,
			rec.RecommendationDate.Format(time.RFC3339),
			rec.StockPriceAtRec,
			rec.DTEAtRec,
			rec.EntryBid,
			rec.EntryAsk,
			rec.EntryMid,
			rec.DeltaAtRec,
			rec.IVAtRec,
			rec.Contracts,
			rec.TotalCost,
			rec.EquivShares,
			rec.CostPerShare,
			rec.Score,
			existing.ID,
		)
		if err != nil {
			return "", fmt.Errorf("failed to update recommendation: %w", err)
		}
		return existing.ID, nil
	}

	newID := uuid.New().String()
	_, err = r.db.Exec(`
		INSERT INTO recommendations (
			id, scan_id, recommendation_date, ticker, stock_price_at_rec,
			strike, expiration, dte_at_rec, entry_bid, entry_ask, entry_mid,
			delta_at_rec, iv_at_rec, contracts, total_cost, equiv_shares,
			cost_per_share, score, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		newID,
		rec.ScanID,
		rec.RecommendationDate.Format(time.RFC3339),
		rec.Ticker,
		rec.StockPriceAtRec,
		rec.Strike,
		rec.Expiration.Format(dateFormat),
		rec.DTEAtRec,
		rec.EntryBid,
		rec.EntryAsk,
		rec.EntryMid,
		rec.DeltaAtRec,
		rec.IVAtRec,
		rec.Contracts,
		rec.TotalCost,
		rec.EquivShares,
		rec.CostPerShare,
		rec.Score,
		string(domain.StatusOpen),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return newID, nil
}

// FindOpen returns the open recommendation for a contract triple, or nil
func (r *Repository) FindOpen(ticker string, strike float64, expiration time.Time) (*domain.Recommendation, error) {
	row := r.db.QueryRow(selectRecommendation+`
		WHERE ticker = ? AND strike = ? AND expiration = ? AND status = ?
		LIMIT 1
	`, ticker, strike, expiration.Format(dateFormat), string(domain.StatusOpen))

	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads one recommendation by id
func (r *Repository) Get(id string) (*domain.Recommendation, error) {
	row := r.db.QueryRow(selectRecommendation+` WHERE id = ?`, id)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendation: %w", err)
	}
	return rec, nil
}

// List returns recommendations filtered by status ("" for all), newest first
func (r *Repository) List(status domain.RecommendationStatus) ([]domain.Recommendation, error) {
	query := selectRecommendation
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY recommendation_date DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	recs := make([]domain.Recommendation, 0)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// UpdateCurrentState persists refreshed market values for an open recommendation
func (r *Repository) UpdateCurrentState(rec *domain.Recommendation) error {
	var lastUpdated interface{}
	if rec.LastUpdated != nil {
		lastUpdated = rec.LastUpdated.Format(time.RFC3339)
	}
	_, err := r.db.Exec(`
		UPDATE recommendations
		SET current_bid = ?, current_ask = ?, current_mid = ?,
			stock_current = ?, delta_current = ?, current_value = ?,
			unrealized_pnl = ?, unrealized_pnl_pct = ?, last_updated = ?
		WHERE id = ?
	`,
		rec.CurrentBid, rec.CurrentAsk, rec.CurrentMid,
		rec.StockCurrent, rec.DeltaCurrent, rec.CurrentValue,
		rec.UnrealizedPnL, rec.UnrealizedPnLPct, lastUpdated,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recommendation state: %w", err)
	}
	return nil
}

// Terminate moves a recommendation into a terminal status
func (r *Repository) Terminate(id string, status domain.RecommendationStatus, reason string, closedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	_, err := r.db.Exec(`
		UPDATE recommendations
		SET status = ?, close_reason = ?, closed_date = ?
		WHERE id = ?
	`, string(status), reason, closedAt.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to terminate recommendation: %w", err)
	}
	return nil
}

// AddSnapshot appends one observation to a recommendation's history
func (r *Repository) AddSnapshot(snap domain.PositionSnapshot) error {
	_, err := r.db.Exec(`
		INSERT INTO position_snapshots (
			recommendation_id, timestamp, stock_price, option_bid, option_ask,
			option_mid, delta, value, pnl, pnl_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.RecommendationID,
		snap.Timestamp.Format(time.RFC3339),
		snap.StockPrice,
		snap.OptionBid,
		snap.OptionAsk,
		snap.OptionMid,
		snap.Delta,
		snap.Value,
		snap.PnL,
		snap.PnLPct,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshots returns a recommendation's history ordered by timestamp
func (r *Repository) GetSnapshots(recommendationID string) ([]domain.PositionSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT recommendation_id, timestamp, stock_price, option_bid, option_ask,
		       option_mid, delta, value, pnl, pnl_pct
		FROM position_snapshots
		WHERE recommendation_id = ?
		ORDER BY timestamp
	`, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]domain.PositionSnapshot, 0)
	for rows.Next() {
		var snap domain.PositionSnapshot
		var ts string
		err := rows.Scan(
			&snap.RecommendationID, &ts, &snap.StockPrice, &snap.OptionBid,
			&snap.OptionAsk, &snap.OptionMid, &snap.Delta, &snap.Value,
			&snap.PnL, &snap.PnLPct,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if snap.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// PresetFor maps a recommendation to the preset its scan ran under
func (r *Repository) PresetFor(recommendationID string) (string, error) {
	var preset string
	err := r.db.QueryRow(`
		SELECT s.preset_name
		FROM recommendations r JOIN scans s ON r.scan_id = s.scan_id
		WHERE r.id = ?
	`, recommendationID).Scan(&preset)
	if err != nil {
		return "", fmt.Errorf("failed to resolve preset: %w", err)
	}
	return preset, nil
}

// ListByPreset returns recommendations created under one preset, newest first
func (r *Repository) ListByPreset(presetName string) ([]domain.Recommendation, error) {
	rows, err := r.db.Query(selectRecommendation+`
		WHERE scan_id IN (SELECT scan_id FROM scans WHERE preset_name = ?)
		ORDER BY recommendation_date DESC
	`, presetName)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations by preset: %w", err)
	}
	defer rows.Close()

	recs := make([]domain.Recommendation, 0)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation row: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

const selectRecommendation = `
	SELECT id, scan_id, recommendation_date, ticker, stock_price_at_rec,
	       strike, expiration, dte_at_rec, entry_bid, entry_ask, entry_mid,
	       delta_at_rec, iv_at_rec, contracts, total_cost, equiv_shares,
	       cost_per_share, score, status,
	       current_bid, current_ask, current_mid, stock_current, delta_current,
	       current_value, unrealized_pnl, unrealized_pnl_pct, last_updated,
	       closed_date, close_reason
	FROM recommendations
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var recDate, expiration, status string
	var currentBid, currentAsk, currentMid, stockCurrent, deltaCurrent sql.NullFloat64
	var currentValue, unrealizedPnL, unrealizedPnLPct sql.NullFloat64
	var lastUpdated, closedDate, closeReason sql.NullString

	err := row.Scan(
		&rec.ID, &rec.ScanID, &recDate, &rec.Ticker, &rec.StockPriceAtRec,
		&rec.Strike, &expiration, &rec.DTEAtRec, &rec.EntryBid, &rec.EntryAsk,
		&rec.EntryMid, &rec.DeltaAtRec, &rec.IVAtRec, &rec.Contracts,
		&rec.TotalCost, &rec.EquivShares, &rec.CostPerShare, &rec.Score, &status,
		&currentBid, &currentAsk, &currentMid, &stockCurrent, &deltaCurrent,
		&currentValue, &unrealizedPnL, &unrealizedPnLPct, &lastUpdated,
		&closedDate, &closeReason,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.RecommendationStatus(status)
	if rec.RecommendationDate, err = time.Parse(time.RFC3339, recDate); err != nil {
		return nil, fmt.Errorf("failed to parse recommendation date: %w", err)
	}
	if rec.Expiration, err = time.Parse(dateFormat, expiration); err != nil {
		return nil, fmt.Errorf("failed to parse expiration: %w", err)
	}

	rec.CurrentBid = nullFloat(currentBid)
	rec.CurrentAsk = nullFloat(currentAsk)
	rec.CurrentMid = nullFloat(currentMid)
	rec.StockCurrent = nullFloat(stockCurrent)
	rec.DeltaCurrent = nullFloat(deltaCurrent)
	rec.CurrentValue = nullFloat(currentValue)
	rec.UnrealizedPnL = nullFloat(unrealizedPnL)
	rec.UnrealizedPnLPct = nullFloat(unrealizedPnLPct)

	if lastUpdated.Valid {
		t, err := time.Parse(time.RFC3339, lastUpdated.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_updated: %w", err)
		}
		rec.LastUpdated = &t
	}
	if closedDate.Valid {
		t, err := time.Parse(time.RFC3339, closedDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse closed_date: %w", err)
		}
		rec.ClosedDate = &t
	}
	if closeReason.Valid {
		rec.CloseReason = closeReason.String
	}

	return &rec, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
