package presets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ditm/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

// eligibleCandidate passes the conservative preset thresholds
func eligibleCandidate() domain.Candidate {
	return domain.Candidate{
		Ticker:       "AAPL",
		Delta:        0.892,
		IntrinsicPct: 0.904,
		ExtrinsicPct: 0.0957,
		DTE:          180,
		IV:           floatPtr(0.24),
		SpreadPct:    0.0142,
		OpenInterest: 5243,
	}
}

func conservativeThresholds() domain.Thresholds {
	return domain.Thresholds{
		MinDelta:        0.80,
		MaxDelta:        0.95,
		MinIntrinsicPct: 0.85,
		MaxExtrinsicPct: 0.20,
		MinDTE:          90,
		MaxDTE:          365,
		MaxIV:           0.30,
		MaxSpreadPct:    0.02,
		MinOpenInterest: 500,
	}
}

func TestMatchesEligibleCandidate(t *testing.T) {
	assert.True(t, Matches(eligibleCandidate(), conservativeThresholds()))
}

func TestMatchesEachCriterionRejects(t *testing.T) {
	thresholds := conservativeThresholds()

	tests := []struct {
		name   string
		mutate func(*domain.Candidate)
	}{
		{"delta below min", func(c *domain.Candidate) { c.Delta = 0.79 }},
		{"delta above max", func(c *domain.Candidate) { c.Delta = 0.96 }},
		{"intrinsic pct below min", func(c *domain.Candidate) { c.IntrinsicPct = 0.84 }},
		{"extrinsic pct above max", func(c *domain.Candidate) { c.ExtrinsicPct = 0.21 }},
		{"dte below min", func(c *domain.Candidate) { c.DTE = 89 }},
		{"dte above max", func(c *domain.Candidate) { c.DTE = 366 }},
		{"iv above max", func(c *domain.Candidate) { c.IV = floatPtr(0.31) }},
		{"iv missing", func(c *domain.Candidate) { c.IV = nil }},
		{"spread above max", func(c *domain.Candidate) { c.SpreadPct = 0.021 }},
		{"open interest below min", func(c *domain.Candidate) { c.OpenInterest = 499 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := eligibleCandidate()
			tt.mutate(&cand)
			assert.False(t, Matches(cand, thresholds))
		})
	}
}

func TestMatchesInclusiveBoundaries(t *testing.T) {
	thresholds := conservativeThresholds()
	cand := eligibleCandidate()
	cand.Delta = 0.80
	cand.IntrinsicPct = 0.85
	cand.ExtrinsicPct = 0.20
	cand.DTE = 90
	cand.IV = floatPtr(0.30)
	cand.SpreadPct = 0.02
	cand.OpenInterest = 500

	assert.True(t, Matches(cand, thresholds))
}

func TestMatchAllOrderedByName(t *testing.T) {
	lib, err := NewLibrary("", zerolog.Nop())
	require.NoError(t, err)

	// Eligible for every built-in preset
	matched := lib.MatchAll(eligibleCandidate())
	assert.Equal(t, []string{"aggressive", "conservative", "moderate"}, matched)

	// Too little intrinsic for conservative, still fine for the others
	loose := eligibleCandidate()
	loose.IntrinsicPct = 0.75
	assert.Equal(t, []string{"aggressive", "moderate"}, lib.MatchAll(loose))
}

func TestMismatchReasons(t *testing.T) {
	cand := eligibleCandidate()
	cand.Delta = 0.50
	cand.IV = nil

	reasons := MismatchReasons(cand, conservativeThresholds())
	require.Len(t, reasons, 2)
	assert.Contains(t, reasons[0], "delta")
	assert.Contains(t, reasons[1], "iv")
}

func TestLibraryRejectsInvalidPreset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.json")

	payload := map[string]interface{}{
		"filter_presets": map[string]interface{}{
			"broken": map[string]interface{}{
				"label": "Broken",
				"filters": map[string]interface{}{
					"MIN_DELTA": 0.9,
					"MAX_DELTA": 0.5,
				},
			},
		},
		"default_preset": "broken",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = NewLibrary(path, zerolog.Nop())
	require.Error(t, err)

	var cfgErr *domain.PresetConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "broken", cfgErr.Preset)
}

func TestLibraryLoadsCustomFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.json")

	payload := `{
		"filter_presets": {
			"custom": {
				"label": "Custom",
				"filters": {
					"MIN_DELTA": 0.7, "MAX_DELTA": 0.9,
					"MIN_INTRINSIC_PCT": 0.7, "MAX_EXTRINSIC_PCT": 0.3,
					"MIN_DTE": 30, "MAX_DTE": 365,
					"MAX_IV": 0.4, "MAX_SPREAD_PCT": 0.05, "MIN_OI": 100
				}
			}
		},
		"default_preset": "custom"
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	lib, err := NewLibrary(path, zerolog.Nop())
	require.NoError(t, err)

	preset, err := lib.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, 0.7, preset.Thresholds.MinDelta)
	assert.Equal(t, "custom", lib.Default().Name)

	// Built-ins are replaced, not merged
	_, err = lib.Get("conservative")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
