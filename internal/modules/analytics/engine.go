// Package analytics computes portfolio performance and risk metrics over
// recommendation histories.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/ditm/pkg/formulas"
)

// PositionPerf is one recommendation's performance contribution.
type PositionPerf struct {
	ID                 string    `json:"id"`
	Ticker             string    `json:"ticker"`
	Strike             float64   `json:"strike"`
	Expiration         time.Time `json:"expiration"`
	Status             string    `json:"status"`
	RecommendationDate time.Time `json:"recommendation_date"`
	DaysHeld           int       `json:"days_held"`
	TotalCost          float64   `json:"total_cost"`
	CurrentValue       float64   `json:"current_value"`
	PnL                float64   `json:"pnl"`
	PnLPct             float64   `json:"pnl_pct"` // percent
	PresetName         string    `json:"preset_name,omitempty"`
}

// RiskMetrics is the portfolio-level risk and performance aggregate set.
// Every ratio with a zero-capable denominator is a nullable Metric.
type RiskMetrics struct {
	Positions int     `json:"positions"`
	Winners   int     `json:"winners"`
	Losers    int     `json:"losers"`
	TotalPnL  float64 `json:"total_pnl"`

	WinRate      Metric `json:"win_rate"`
	AvgReturn    Metric `json:"avg_return"`
	MedianReturn Metric `json:"median_return"`
	StdReturn    Metric `json:"std_return"`
	BestReturn   Metric `json:"best_return"`
	WorstReturn  Metric `json:"worst_return"`

	Sharpe       Metric `json:"sharpe_ratio"`
	Sortino      Metric `json:"sortino_ratio"`
	MaxDrawdown  Metric `json:"max_drawdown"`
	Calmar       Metric `json:"calmar_ratio"`
	ProfitFactor Metric `json:"profit_factor"`
	WinLossRatio Metric `json:"win_loss_ratio"`
	Expectancy   Metric `json:"expectancy"`

	AvgWin  Metric `json:"avg_win"`
	AvgLoss Metric `json:"avg_loss"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}

// Engine computes risk metrics. riskFreeRate is expressed in the same
// percent units as per-position returns.
type Engine struct {
	riskFreeRate float64
}

// NewEngine creates an analytics engine
func NewEngine(riskFreeRate float64) *Engine {
	return &Engine{riskFreeRate: riskFreeRate}
}

// Compute derives the full metric set from a position list. Positions are
// processed in recommendation-date order. An empty list yields a report of
// undefined metrics, never an error.
func (e *Engine) Compute(positions []PositionPerf) RiskMetrics {
	m := RiskMetrics{Positions: len(positions)}
	if len(positions) == 0 {
		return m
	}

	ordered := make([]PositionPerf, len(positions))
	copy(ordered, positions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RecommendationDate.Before(ordered[j].RecommendationDate)
	})

	returns := make([]float64, 0, len(ordered))
	winsPnL, lossesPnL := 0.0, 0.0
	winReturns := make([]float64, 0)
	lossReturns := make([]float64, 0)
	totalDaysHeld := 0

	for _, p := range ordered {
		returns = append(returns, p.PnLPct)
		m.TotalPnL += p.PnL
		totalDaysHeld += p.DaysHeld
		switch {
		case p.PnL > 0:
			m.Winners++
			winsPnL += p.PnL
			winReturns = append(winReturns, p.PnLPct)
		case p.PnL < 0:
			m.Losers++
			lossesPnL += p.PnL
			lossReturns = append(lossReturns, p.PnLPct)
		}
	}

	n := float64(len(returns))
	m.WinRate = Defined(float64(m.Winners) / n)
	m.AvgReturn = Defined(formulas.Mean(returns))
	m.MedianReturn = Defined(formulas.Median(returns))
	m.Expectancy = Defined(m.TotalPnL / n)

	best, worst := returns[0], returns[0]
	for _, r := range returns {
		best = math.Max(best, r)
		worst = math.Min(worst, r)
	}
	m.BestReturn = Defined(best)
	m.WorstReturn = Defined(worst)

	if len(returns) > 1 {
		m.StdReturn = Defined(formulas.StdDev(returns))
	}

	if m.StdReturn.Valid && m.StdReturn.Value > 0 {
		m.Sharpe = Defined((m.AvgReturn.Value - e.riskFreeRate) / m.StdReturn.Value)
	}

	// Downside deviation needs at least two losing positions for a
	// sample standard deviation.
	if len(lossReturns) > 1 {
		downside := formulas.StdDev(lossReturns)
		if downside > 0 {
			m.Sortino = Defined((m.AvgReturn.Value - e.riskFreeRate) / downside)
		}
	}

	m.MaxDrawdown = maxDrawdown(returns)

	avgDaysHeld := float64(totalDaysHeld) / n
	if m.MaxDrawdown.Valid && m.MaxDrawdown.Value > 0 && avgDaysHeld > 0 {
		annualized := m.AvgReturn.Value * (365 / avgDaysHeld)
		m.Calmar = Defined(annualized / m.MaxDrawdown.Value)
	}

	if lossesPnL < 0 {
		m.ProfitFactor = Defined(winsPnL / math.Abs(lossesPnL))
	}

	if len(winReturns) > 0 {
		m.AvgWin = Defined(formulas.Mean(winReturns))
	}
	if len(lossReturns) > 0 {
		m.AvgLoss = Defined(math.Abs(formulas.Mean(lossReturns)))
	}
	if m.AvgWin.Valid && m.AvgLoss.Valid && m.AvgLoss.Value > 0 {
		m.WinLossRatio = Defined(m.AvgWin.Value / m.AvgLoss.Value)
	}

	m.MaxConsecutiveWins, m.MaxConsecutiveLosses = streaks(returns)
	return m
}

// maxDrawdown computes the largest peak-to-trough decline, in percent, of
// the compounded return curve in position order.
func maxDrawdown(returns []float64) Metric {
	if len(returns) == 0 {
		return Undefined()
	}

	cumulative := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r/100
		if cumulative > peak {
			peak = cumulative
		}
		if dd := (cumulative - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return Defined(math.Abs(worst) * 100)
}

// streaks finds the longest runs of consecutive wins and losses
func streaks(returns []float64) (maxWins, maxLosses int) {
	curWins, curLosses := 0, 0
	for _, r := range returns {
		if r > 0 {
			curWins++
			curLosses = 0
		} else if r < 0 {
			curLosses++
			curWins = 0
		} else {
			curWins, curLosses = 0, 0
		}
		if curWins > maxWins {
			maxWins = curWins
		}
		if curLosses > maxLosses {
			maxLosses = curLosses
		}
	}
	return maxWins, maxLosses
}
