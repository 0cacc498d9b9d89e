package schwab

// quoteEnvelope is the per-symbol quote response payload
type quoteEnvelope struct {
	Quote struct {
		LastPrice float64 `json:"lastPrice"`
	} `json:"quote"`
}

// chainResponse is the option chain response for a single underlying.
// CallExpDateMap keys are "YYYY-MM-DD:DTE", values map strike strings
// to the contracts at that strike.
type chainResponse struct {
	Symbol          string                              `json:"symbol"`
	Status          string                              `json:"status"`
	UnderlyingPrice float64                             `json:"underlyingPrice"`
	CallExpDateMap  map[string]map[string][]rawContract `json:"callExpDateMap"`
}

type rawContract struct {
	Symbol       string  `json:"symbol"`
	StrikePrice  float64 `json:"strikePrice"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Delta        float64 `json:"delta"`
	Volatility   float64 `json:"volatility"`
	OpenInterest int64   `json:"openInterest"`
}
