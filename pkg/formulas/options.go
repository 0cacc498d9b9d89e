package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// BSCallDelta calculates the Black-Scholes delta for a call option.
// Used as a fallback when the gateway does not report delta for a contract.
//
//	S     - underlying price
//	K     - strike
//	T     - time to expiration in years
//	r     - risk-free rate
//	sigma - implied volatility
func BSCallDelta(S, K, T, r, sigma float64) float64 {
	if T <= 0 {
		if S > K {
			return 1.0
		}
		return 0.0
	}
	if sigma <= 0 || S <= 0 || K <= 0 {
		return 0.0
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	return norm.CDF(d1)
}
