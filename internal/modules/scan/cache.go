package scan

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/ditm/internal/domain"
)

const (
	latestResultKey  = "latest_scan"
	lastFetchMetaKey = "last_successful_fetch"
)

// Cache stores the most recent scan result as a msgpack blob so the
// presentation layer can serve it without replaying repository queries.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a scan result cache backed by the cache database
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("repository", "scan-cache").Logger(),
	}
}

// StoreLatest overwrites the cached latest scan result
func (c *Cache) StoreLatest(result *Result) error {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO scan_cache (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, latestResultKey, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to cache scan result: %w", err)
	}

	c.log.Debug().Int("bytes", len(payload)).Msg("Cached latest scan result")
	return nil
}

// Latest returns the cached most recent scan result
func (c *Cache) Latest() (*Result, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM scan_cache WHERE key = ?`, latestResultKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no cached scan: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scan cache: %w", err)
	}

	var result Result
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached scan: %w", err)
	}
	return &result, nil
}

// RecordFetchSuccess stamps the time of the last scan that reached the
// gateway successfully. Used to judge data staleness.
func (c *Cache) RecordFetchSuccess(at time.Time) error {
	_, err := c.db.Exec(`
		INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, lastFetchMetaKey, at.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record fetch time: %w", err)
	}
	return nil
}

// LastFetchSuccess returns the time of the last successful gateway fetch
func (c *Cache) LastFetchSuccess() (time.Time, error) {
	var value string
	err := c.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, lastFetchMetaKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("no recorded fetch: %w", domain.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read fetch time: %w", err)
	}

	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse fetch time: %w", err)
	}
	return at, nil
}
