package presets

import (
	"fmt"

	"github.com/aristath/ditm/internal/domain"
)

// Matches reports whether a candidate passes every threshold in the set.
// All comparisons are inclusive at the boundary. A candidate with no IV
// fails the IV check.
func Matches(c domain.Candidate, t domain.Thresholds) bool {
	if c.Delta < t.MinDelta || c.Delta > t.MaxDelta {
		return false
	}
	if c.IntrinsicPct < t.MinIntrinsicPct {
		return false
	}
	if c.ExtrinsicPct > t.MaxExtrinsicPct {
		return false
	}
	if c.DTE < t.MinDTE || c.DTE > t.MaxDTE {
		return false
	}
	if c.IV == nil || *c.IV > t.MaxIV {
		return false
	}
	if c.SpreadPct > t.MaxSpreadPct {
		return false
	}
	if c.OpenInterest < t.MinOpenInterest {
		return false
	}
	return true
}

// MatchAll evaluates the candidate against every preset in the library and
// returns the names of the presets it passes, ordered by name.
func (l *Library) MatchAll(c domain.Candidate) []string {
	matched := make([]string, 0, len(l.presets))
	for _, preset := range l.All() {
		if Matches(c, preset.Thresholds) {
			matched = append(matched, preset.Name)
		}
	}
	return matched
}

// CriterionResult is one threshold check's outcome, for explain output.
type CriterionResult struct {
	Value    float64 `json:"value"`
	Required string  `json:"required"`
	Pass     bool    `json:"pass"`
}

// Explain evaluates each criterion independently so callers can see which
// thresholds a candidate missed.
func Explain(c domain.Candidate, t domain.Thresholds) map[string]CriterionResult {
	iv := 0.0
	ivPass := false
	if c.IV != nil {
		iv = *c.IV
		ivPass = iv <= t.MaxIV
	}

	return map[string]CriterionResult{
		"delta": {
			Value:    c.Delta,
			Required: fmt.Sprintf("%.2f-%.2f", t.MinDelta, t.MaxDelta),
			Pass:     c.Delta >= t.MinDelta && c.Delta <= t.MaxDelta,
		},
		"intrinsic_pct": {
			Value:    c.IntrinsicPct,
			Required: fmt.Sprintf(">=%.2f", t.MinIntrinsicPct),
			Pass:     c.IntrinsicPct >= t.MinIntrinsicPct,
		},
		"extrinsic_pct": {
			Value:    c.ExtrinsicPct,
			Required: fmt.Sprintf("<=%.2f", t.MaxExtrinsicPct),
			Pass:     c.ExtrinsicPct <= t.MaxExtrinsicPct,
		},
		"dte": {
			Value:    float64(c.DTE),
			Required: fmt.Sprintf("%d-%d", t.MinDTE, t.MaxDTE),
			Pass:     c.DTE >= t.MinDTE && c.DTE <= t.MaxDTE,
		},
		"iv": {
			Value:    iv,
			Required: fmt.Sprintf("<=%.2f", t.MaxIV),
			Pass:     ivPass,
		},
		"spread_pct": {
			Value:    c.SpreadPct,
			Required: fmt.Sprintf("<=%.4f", t.MaxSpreadPct),
			Pass:     c.SpreadPct <= t.MaxSpreadPct,
		},
		"open_interest": {
			Value:    float64(c.OpenInterest),
			Required: fmt.Sprintf(">=%d", t.MinOpenInterest),
			Pass:     c.OpenInterest >= t.MinOpenInterest,
		},
	}
}

// MismatchReasons lists the criteria a candidate fails, in stable order.
func MismatchReasons(c domain.Candidate, t domain.Thresholds) []string {
	order := []string{"delta", "intrinsic_pct", "extrinsic_pct", "dte", "iv", "spread_pct", "open_interest"}
	results := Explain(c, t)

	reasons := make([]string, 0)
	for _, name := range order {
		if r := results[name]; !r.Pass {
			reasons = append(reasons, fmt.Sprintf("%s %.4f (required %s)", name, r.Value, r.Required))
		}
	}
	return reasons
}
