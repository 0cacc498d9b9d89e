package formulas

import (
	"github.com/markcheno/go-talib"
)

// EMA calculates the Exponential Moving Average over a series.
// Returns nil when the series is shorter than the period (TA-Lib pads the
// warm-up region with zeros, which would read as fake data points).
func EMA(data []float64, period int) []float64 {
	if period < 2 || len(data) < period {
		return nil
	}
	return talib.Ema(data, period)
}

// SMA calculates the Simple Moving Average over a series.
func SMA(data []float64, period int) []float64 {
	if period < 2 || len(data) < period {
		return nil
	}
	return talib.Sma(data, period)
}
