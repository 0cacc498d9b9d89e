package scan

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/database"
	"github.com/aristath/ditm/internal/domain"
)

// Repository persists scans and their candidate sets
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a scan repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "scan").Logger(),
	}
}

// CreateScan inserts a scan row at scan start
func (r *Repository) CreateScan(scan domain.Scan) error {
	tickers, err := json.Marshal(scan.Tickers)
	if err != nil {
		return fmt.Errorf("failed to marshal tickers: %w", err)
	}
	thresholds, err := json.Marshal(scan.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO scans (scan_id, scan_date, preset_name, tickers, thresholds, target_capital)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		scan.ID,
		scan.ScanDate.Format(time.RFC3339),
		scan.PresetName,
		string(tickers),
		string(thresholds),
		scan.TargetCapital,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// CompleteScan records final counts and per-ticker failures once a scan is done
func (r *Repository) CompleteScan(scanID string, candidates, recommendations int, failed map[string]string) error {
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to marshal failed tickers: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE scans
		SET candidates_count = ?, recommendations_count = ?, failed_tickers = ?
		WHERE scan_id = ?
	`, candidates, recommendations, string(failedJSON), scanID)
	if err != nil {
		return fmt.Errorf("failed to complete scan: %w", err)
	}
	return nil
}

// SaveCandidates persists a scan's full candidate set in one transaction
func (r *Repository) SaveCandidates(scanID string, scanDate time.Time, candidates []domain.Candidate) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO candidates (
				scan_id, scan_date, ticker, stock_price, strike, expiration, dte,
				bid, ask, mid, delta, iv, open_interest,
				intrinsic, intrinsic_pct, extrinsic, extrinsic_pct, spread_pct,
				leverage_factor, cost_per_share, breakeven, score, matched_presets, selected
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare candidate insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range candidates {
			matched, err := json.Marshal(c.MatchedPresets)
			if err != nil {
				return fmt.Errorf("failed to marshal matched presets: %w", err)
			}

			var iv interface{}
			if c.IV != nil {
				iv = *c.IV
			}

			_, err = stmt.Exec(
				scanID,
				scanDate.Format(time.RFC3339),
				c.Ticker,
				c.UnderlyingPrice,
				c.Strike,
				c.Expiration.Format("2006-01-02"),
				c.DTE,
				c.Bid,
				c.Ask,
				c.Mid,
				c.Delta,
				iv,
				c.OpenInterest,
				c.Intrinsic,
				c.IntrinsicPct,
				c.Extrinsic,
				c.ExtrinsicPct,
				c.SpreadPct,
				c.LeverageFactor,
				c.CostPerShare,
				c.Breakeven,
				c.Score,
				string(matched),
				boolToInt(c.Selected),
			)
			if err != nil {
				return fmt.Errorf("failed to insert candidate %s %.2f: %w", c.Ticker, c.Strike, err)
			}
		}
		return nil
	})
}

// GetScan loads one scan by id
func (r *Repository) GetScan(scanID string) (*domain.Scan, error) {
	row := r.db.QueryRow(`
		SELECT scan_id, scan_date, preset_name, tickers, thresholds, target_capital,
		       candidates_count, recommendations_count, failed_tickers
		FROM scans WHERE scan_id = ?
	`, scanID)

	scan, err := scanRowToScan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan %s: %w", scanID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scan: %w", err)
	}
	return scan, nil
}

// ListScans returns scans newest first
func (r *Repository) ListScans(limit int) ([]domain.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT scan_id, scan_date, preset_name, tickers, thresholds, target_capital,
		       candidates_count, recommendations_count, failed_tickers
		FROM scans ORDER BY scan_date DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	scans := make([]domain.Scan, 0)
	for rows.Next() {
		scan, err := scanRowToScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

// GetCandidates loads a scan's candidate set ordered by ticker then score
func (r *Repository) GetCandidates(scanID string) ([]domain.Candidate, error) {
	rows, err := r.db.Query(`
		SELECT ticker, stock_price, strike, expiration, dte,
		       bid, ask, mid, delta, iv, open_interest,
		       intrinsic, intrinsic_pct, extrinsic, extrinsic_pct, spread_pct,
		       leverage_factor, cost_per_share, breakeven, score, matched_presets, selected
		FROM candidates WHERE scan_id = ?
		ORDER BY ticker, score
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]domain.Candidate, 0)
	for rows.Next() {
		var c domain.Candidate
		var expiration, matched string
		var iv sql.NullFloat64
		var selected int

		err := rows.Scan(
			&c.Ticker, &c.UnderlyingPrice, &c.Strike, &expiration, &c.DTE,
			&c.Bid, &c.Ask, &c.Mid, &c.Delta, &iv, &c.OpenInterest,
			&c.Intrinsic, &c.IntrinsicPct, &c.Extrinsic, &c.ExtrinsicPct, &c.SpreadPct,
			&c.LeverageFactor, &c.CostPerShare, &c.Breakeven, &c.Score, &matched, &selected,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}

		if c.Expiration, err = time.Parse("2006-01-02", expiration); err != nil {
			return nil, fmt.Errorf("failed to parse candidate expiration: %w", err)
		}
		if iv.Valid {
			v := iv.Float64
			c.IV = &v
		}
		if err := json.Unmarshal([]byte(matched), &c.MatchedPresets); err != nil {
			return nil, fmt.Errorf("failed to parse matched presets: %w", err)
		}
		c.Selected = selected != 0

		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRowToScan(row rowScanner) (*domain.Scan, error) {
	var scan domain.Scan
	var scanDate, tickers, thresholds string
	var failed sql.NullString

	err := row.Scan(
		&scan.ID, &scanDate, &scan.PresetName, &tickers, &thresholds,
		&scan.TargetCapital, &scan.CandidatesCount, &scan.RecommendationsCount, &failed,
	)
	if err != nil {
		return nil, err
	}

	if scan.ScanDate, err = time.Parse(time.RFC3339, scanDate); err != nil {
		return nil, fmt.Errorf("failed to parse scan date: %w", err)
	}
	if err := json.Unmarshal([]byte(tickers), &scan.Tickers); err != nil {
		return nil, fmt.Errorf("failed to parse tickers: %w", err)
	}
	if err := json.Unmarshal([]byte(thresholds), &scan.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to parse thresholds: %w", err)
	}
	if failed.Valid && failed.String != "" {
		if err := json.Unmarshal([]byte(failed.String), &scan.FailedTickers); err != nil {
			return nil, fmt.Errorf("failed to parse failed tickers: %w", err)
		}
	}
	return &scan, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
