// Package domain provides core domain models and types.
package domain

import "time"

// ContractsPerLot is the share multiplier for a standard US equity option.
const ContractsPerLot = 100

// Contract is a single call option as delivered by the market-data gateway.
// It is ephemeral: contracts are never persisted verbatim, only the Candidates
// derived from them.
type Contract struct {
	Ticker          string    `json:"ticker"`
	UnderlyingPrice float64   `json:"underlying_price"`
	Strike          float64   `json:"strike"`
	Expiration      time.Time `json:"expiration"`
	Bid             float64   `json:"bid"`
	Ask             float64   `json:"ask"`
	Delta           float64   `json:"delta"`
	IV              *float64  `json:"iv"` // nil when the gateway reports no implied volatility
	OpenInterest    int64     `json:"open_interest"`
}

// Candidate is a Contract plus every derived metric, frozen at scan time.
// Candidates are immutable once created: they represent a point-in-time
// snapshot and are retained for retroactive preset comparison.
type Candidate struct {
	Ticker          string    `json:"ticker"`
	UnderlyingPrice float64   `json:"underlying_price"`
	Strike          float64   `json:"strike"`
	Expiration      time.Time `json:"expiration"`
	Bid             float64   `json:"bid"`
	Ask             float64   `json:"ask"`
	Mid             float64   `json:"mid"`
	Delta           float64   `json:"delta"`
	IV              *float64  `json:"iv"`
	OpenInterest    int64     `json:"open_interest"`

	Intrinsic      float64 `json:"intrinsic"`
	Extrinsic      float64 `json:"extrinsic"`
	IntrinsicPct   float64 `json:"intrinsic_pct"`
	ExtrinsicPct   float64 `json:"extrinsic_pct"`
	SpreadPct      float64 `json:"spread_pct"`
	DTE            int     `json:"dte"`
	LeverageFactor float64 `json:"leverage_factor"`
	CostPerShare   float64 `json:"cost_per_share"`
	Breakeven      float64 `json:"breakeven"`

	Score          float64  `json:"score"`
	MatchedPresets []string `json:"matched_presets"`
	Selected       bool     `json:"selected"`
}

// Thresholds is one named preset's filter criteria. All comparisons against a
// candidate are inclusive at the boundary.
type Thresholds struct {
	MinDelta        float64 `json:"MIN_DELTA"`
	MaxDelta        float64 `json:"MAX_DELTA"`
	MinIntrinsicPct float64 `json:"MIN_INTRINSIC_PCT"`
	MaxExtrinsicPct float64 `json:"MAX_EXTRINSIC_PCT"`
	MinDTE          int     `json:"MIN_DTE"`
	MaxDTE          int     `json:"MAX_DTE"`
	MaxIV           float64 `json:"MAX_IV"`
	MaxSpreadPct    float64 `json:"MAX_SPREAD_PCT"`
	MinOpenInterest int64   `json:"MIN_OI"`
}

// Validate checks the MIN <= MAX invariant on every paired threshold.
// A preset failing validation must never be used anywhere.
func (t Thresholds) Validate() error {
	if t.MinDelta > t.MaxDelta {
		return &PresetConfigError{Field: "delta", Reason: "MIN_DELTA exceeds MAX_DELTA"}
	}
	if t.MinDTE > t.MaxDTE {
		return &PresetConfigError{Field: "dte", Reason: "MIN_DTE exceeds MAX_DTE"}
	}
	return nil
}

// Preset is a named, read-only threshold set.
type Preset struct {
	Name       string     `json:"name"`
	Label      string     `json:"label"`
	Thresholds Thresholds `json:"filters"`
}

// ScoringWeights holds the conservatism score weights. Lower score = more
// conservative. The weights sum to 1.0; extrinsic value decays to zero by
// expiry and is weighted heaviest.
type ScoringWeights struct {
	ExtrinsicPct float64 `json:"extrinsic_pct"`
	Delta        float64 `json:"delta"`
	Leverage     float64 `json:"leverage"`
	IV           float64 `json:"iv"`
	SpreadPct    float64 `json:"spread_pct"`
}

// DefaultScoringWeights is the canonical weighting.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		ExtrinsicPct: 0.35,
		Delta:        0.25,
		Leverage:     0.20,
		IV:           0.10,
		SpreadPct:    0.10,
	}
}

// Scan records one scan session: which tickers were screened, under which
// preset, and what came out. Immutable once complete.
type Scan struct {
	ID                   string            `json:"id"`
	ScanDate             time.Time         `json:"scan_date"`
	Tickers              []string          `json:"tickers"`
	PresetName           string            `json:"preset_name"`
	Thresholds           Thresholds        `json:"thresholds"`
	TargetCapital        float64           `json:"target_capital"`
	CandidatesCount      int               `json:"candidates_count"`
	RecommendationsCount int               `json:"recommendations_count"`
	FailedTickers        map[string]string `json:"failed_tickers,omitempty"` // ticker -> failure reason
}

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusOpen    RecommendationStatus = "open"
	StatusClosed  RecommendationStatus = "closed"
	StatusExpired RecommendationStatus = "expired"
)

// Terminal reports whether no further snapshots may be appended.
func (s RecommendationStatus) Terminal() bool {
	return s == StatusClosed || s == StatusExpired
}

// Recommendation is one selected candidate for one ticker within a scan,
// sized to whole contracts. At most one open recommendation may exist per
// (ticker, strike, expiration) triple. Rows are never deleted; closed and
// expired rows feed the analytics engine.
type Recommendation struct {
	ID                 string               `json:"id"`
	ScanID             string               `json:"scan_id"`
	RecommendationDate time.Time            `json:"recommendation_date"`
	Ticker             string               `json:"ticker"`
	StockPriceAtRec    float64              `json:"stock_price_at_rec"`
	Strike             float64              `json:"strike"`
	Expiration         time.Time            `json:"expiration"`
	DTEAtRec           int                  `json:"dte_at_rec"`
	EntryBid           float64              `json:"entry_bid"`
	EntryAsk           float64              `json:"entry_ask"`
	EntryMid           float64              `json:"entry_mid"`
	DeltaAtRec         float64              `json:"delta_at_rec"`
	IVAtRec            float64              `json:"iv_at_rec"`
	Contracts          int                  `json:"contracts"`
	TotalCost          float64              `json:"total_cost"`
	EquivShares        float64              `json:"equiv_shares"`
	CostPerShare       float64              `json:"cost_per_share"`
	Score              float64              `json:"score"`
	Status             RecommendationStatus `json:"status"`

	// Mutated by price refreshes while open.
	CurrentBid        *float64   `json:"current_bid,omitempty"`
	CurrentAsk        *float64   `json:"current_ask,omitempty"`
	CurrentMid        *float64   `json:"current_mid,omitempty"`
	StockCurrent      *float64   `json:"stock_current,omitempty"`
	DeltaCurrent      *float64   `json:"delta_current,omitempty"`
	CurrentValue      *float64   `json:"current_value,omitempty"`
	UnrealizedPnL     *float64   `json:"unrealized_pnl,omitempty"`
	UnrealizedPnLPct  *float64   `json:"unrealized_pnl_pct,omitempty"`
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
	ClosedDate        *time.Time `json:"closed_date,omitempty"`
	CloseReason       string     `json:"close_reason,omitempty"`
}

// PositionSnapshot is one timestamped observation of an open recommendation.
// Append-only; ordered by timestamp; the time series the analytics engine
// consumes.
type PositionSnapshot struct {
	RecommendationID string    `json:"recommendation_id"`
	Timestamp        time.Time `json:"timestamp"`
	StockPrice       float64   `json:"stock_price"`
	OptionBid        float64   `json:"option_bid"`
	OptionAsk        float64   `json:"option_ask"`
	OptionMid        float64   `json:"option_mid"`
	Delta            float64   `json:"delta"`
	Value            float64   `json:"value"`
	PnL              float64   `json:"pnl"`
	PnLPct           float64   `json:"pnl_pct"`
}
