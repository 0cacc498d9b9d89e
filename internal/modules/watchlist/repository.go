// Package watchlist manages the default ticker set scans run against.
package watchlist

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
)

// tickers are uppercase US equity symbols
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// Entry is one watched ticker
type Entry struct {
	Ticker  string    `json:"ticker"`
	AddedAt time.Time `json:"added_at"`
}

// Repository stores the watchlist
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a watchlist repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "watchlist").Logger(),
	}
}

// Normalize validates and canonicalizes a ticker symbol
func Normalize(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid ticker %q: must be 1-5 letters", ticker)
	}
	return normalized, nil
}

// Add inserts a ticker, idempotent for already-present symbols
func (r *Repository) Add(ticker string) (*Entry, error) {
	normalized, err := Normalize(ticker)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(`
		INSERT INTO watchlist (ticker, added_at) VALUES (?, ?)
		ON CONFLICT(ticker) DO NOTHING
	`, normalized, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to add ticker: %w", err)
	}

	r.log.Info().Str("ticker", normalized).Msg("Ticker added to watchlist")
	return r.Get(normalized)
}

// Remove deletes a ticker from the watchlist
func (r *Repository) Remove(ticker string) error {
	normalized, err := Normalize(ticker)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`DELETE FROM watchlist WHERE ticker = ?`, normalized)
	if err != nil {
		return fmt.Errorf("failed to remove ticker: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("ticker %s: %w", normalized, domain.ErrNotFound)
	}

	r.log.Info().Str("ticker", normalized).Msg("Ticker removed from watchlist")
	return nil
}

// Get returns one watchlist entry
func (r *Repository) Get(ticker string) (*Entry, error) {
	var entry Entry
	var addedAt string
	err := r.db.QueryRow(`SELECT ticker, added_at FROM watchlist WHERE ticker = ?`, ticker).
		Scan(&entry.Ticker, &addedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ticker %s: %w", ticker, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist entry: %w", err)
	}
	if entry.AddedAt, err = time.Parse(time.RFC3339, addedAt); err != nil {
		return nil, fmt.Errorf("failed to parse added_at: %w", err)
	}
	return &entry, nil
}

// List returns all entries ordered by ticker
func (r *Repository) List() ([]Entry, error) {
	rows, err := r.db.Query(`SELECT ticker, added_at FROM watchlist ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var addedAt string
		if err := rows.Scan(&entry.Ticker, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		if entry.AddedAt, err = time.Parse(time.RFC3339, addedAt); err != nil {
			return nil, fmt.Errorf("failed to parse added_at: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Tickers returns just the symbols, ordered
func (r *Repository) Tickers() ([]string, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	tickers := make([]string, len(entries))
	for i, entry := range entries {
		tickers[i] = entry.Ticker
	}
	return tickers, nil
}
