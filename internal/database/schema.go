package database

// schemas maps database names to their embedded schema. All statements are
// idempotent so they can run on every startup.
var schemas = map[string]string{
	"recommendations": recommendationsSchema,
	"cache":           cacheSchema,
}

// Schema returns the embedded schema for a database name. Used by tests
// that run against in-memory databases.
func Schema(name string) string {
	return schemas[name]
}

const recommendationsSchema = `
CREATE TABLE IF NOT EXISTS scans (
    scan_id               TEXT PRIMARY KEY,
    scan_date             TEXT NOT NULL,
    preset_name           TEXT NOT NULL,
    tickers               TEXT NOT NULL,  -- JSON array
    thresholds            TEXT NOT NULL,  -- JSON object
    target_capital        REAL NOT NULL,
    candidates_count      INTEGER NOT NULL DEFAULT 0,
    recommendations_count INTEGER NOT NULL DEFAULT 0,
    failed_tickers        TEXT            -- JSON object ticker -> reason
);

CREATE TABLE IF NOT EXISTS candidates (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id          TEXT NOT NULL REFERENCES scans(scan_id),
    scan_date        TEXT NOT NULL,
    ticker           TEXT NOT NULL,
    stock_price      REAL NOT NULL,
    strike           REAL NOT NULL,
    expiration       TEXT NOT NULL,
    dte              INTEGER NOT NULL,
    bid              REAL NOT NULL,
    ask              REAL NOT NULL,
    mid              REAL NOT NULL,
    delta            REAL NOT NULL,
    iv               REAL,
    open_interest    INTEGER NOT NULL,
    intrinsic        REAL NOT NULL,
    intrinsic_pct    REAL NOT NULL,
    extrinsic        REAL NOT NULL,
    extrinsic_pct    REAL NOT NULL,
    spread_pct       REAL NOT NULL,
    leverage_factor  REAL NOT NULL,
    cost_per_share   REAL NOT NULL,
    breakeven        REAL NOT NULL,
    score            REAL NOT NULL,
    matched_presets  TEXT NOT NULL DEFAULT '[]',  -- JSON array of preset names
    selected         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_candidates_scan ON candidates(scan_id, ticker, score);
CREATE INDEX IF NOT EXISTS idx_candidates_ticker_date ON candidates(ticker, scan_date);

CREATE TABLE IF NOT EXISTS recommendations (
    id                  TEXT PRIMARY KEY,
    scan_id             TEXT NOT NULL REFERENCES scans(scan_id),
    recommendation_date TEXT NOT NULL,
    ticker              TEXT NOT NULL,
    stock_price_at_rec  REAL NOT NULL,
    strike              REAL NOT NULL,
    expiration          TEXT NOT NULL,
    dte_at_rec          INTEGER NOT NULL,
    entry_bid           REAL NOT NULL,
    entry_ask           REAL NOT NULL,
    entry_mid           REAL NOT NULL,
    delta_at_rec        REAL NOT NULL,
    iv_at_rec           REAL NOT NULL,
    contracts           INTEGER NOT NULL,
    total_cost          REAL NOT NULL,
    equiv_shares        REAL NOT NULL,
    cost_per_share      REAL NOT NULL,
    score               REAL NOT NULL,
    status              TEXT NOT NULL DEFAULT 'open',
    current_bid         REAL,
    current_ask         REAL,
    current_mid         REAL,
    stock_current       REAL,
    delta_current       REAL,
    current_value       REAL,
    unrealized_pnl      REAL,
    unrealized_pnl_pct  REAL,
    last_updated        TEXT,
    closed_date         TEXT,
    close_reason        TEXT
);

-- At most one open recommendation per (ticker, strike, expiration)
CREATE UNIQUE INDEX IF NOT EXISTS idx_recommendations_open_unique
    ON recommendations(ticker, strike, expiration) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status);
CREATE INDEX IF NOT EXISTS idx_recommendations_date ON recommendations(recommendation_date);

CREATE TABLE IF NOT EXISTS position_snapshots (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    recommendation_id TEXT NOT NULL REFERENCES recommendations(id),
    timestamp         TEXT NOT NULL,
    stock_price       REAL NOT NULL,
    option_bid        REAL NOT NULL,
    option_ask        REAL NOT NULL,
    option_mid        REAL NOT NULL,
    delta             REAL NOT NULL,
    value             REAL NOT NULL,
    pnl               REAL NOT NULL,
    pnl_pct           REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_rec ON position_snapshots(recommendation_id, timestamp);

CREATE TABLE IF NOT EXISTS watchlist (
    ticker   TEXT PRIMARY KEY,
    added_at TEXT NOT NULL
);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS scan_cache (
    key        TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,  -- msgpack-encoded scan result
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`
