package domain

import "context"

// MarketDataClient defines the operations the scan and tracking services need
// from the market-data gateway. The concrete implementation lives in
// internal/clients; services depend on this interface so tests can substitute
// a fake gateway.
type MarketDataClient interface {
	// GetQuote returns the last traded price of the underlying.
	GetQuote(ctx context.Context, ticker string) (float64, error)

	// GetCallChain returns every call contract for the ticker across all
	// expirations, with the underlying price stamped on each contract.
	GetCallChain(ctx context.Context, ticker string) ([]Contract, error)

	// GetContract returns the current quote for one specific contract, or
	// ErrNotFound if the gateway no longer lists it.
	GetContract(ctx context.Context, ticker string, strike float64, expiration string) (*Contract, error)
}
