// Package schwab provides the market data gateway client for quotes and
// option chains.
package schwab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
	"github.com/aristath/ditm/pkg/formulas"
)

const (
	defaultMaxRetries = 3
	baseRetryDelay    = 500 * time.Millisecond
)

// Client talks to the Schwab market data API
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	log          zerolog.Logger
	maxRetries   int
	requestDelay time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a new Schwab market data client.
// requestDelay is the minimum pause between consecutive requests.
func NewClient(baseURL, token string, maxRetries int, requestDelay time.Duration, log zerolog.Logger) *Client {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          log.With().Str("client", "schwab").Logger(),
		maxRetries:   maxRetries,
		requestDelay: requestDelay,
	}
}

// GetQuote fetches the last trade price for a ticker
func (c *Client) GetQuote(ctx context.Context, ticker string) (float64, error) {
	endpoint := fmt.Sprintf("%s/marketdata/v1/%s/quotes", c.baseURL, url.PathEscape(ticker))

	var quotes map[string]quoteEnvelope
	if err := c.getJSON(ctx, ticker, "quote", endpoint, &quotes); err != nil {
		return 0, err
	}

	env, ok := quotes[ticker]
	if !ok {
		return 0, &domain.GatewayError{Ticker: ticker, Op: "quote", Err: fmt.Errorf("ticker not in response")}
	}
	if env.Quote.LastPrice <= 0 {
		return 0, &domain.GatewayError{Ticker: ticker, Op: "quote", Err: fmt.Errorf("non-positive last price %.2f", env.Quote.LastPrice)}
	}

	c.log.Debug().Str("ticker", ticker).Float64("price", env.Quote.LastPrice).Msg("Fetched quote")
	return env.Quote.LastPrice, nil
}

// GetCallChain fetches all call contracts for a ticker across expirations
func (c *Client) GetCallChain(ctx context.Context, ticker string) ([]domain.Contract, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("contractType", "CALL")
	endpoint := fmt.Sprintf("%s/marketdata/v1/chains?%s", c.baseURL, params.Encode())

	var chain chainResponse
	if err := c.getJSON(ctx, ticker, "chain", endpoint, &chain); err != nil {
		return nil, err
	}
	if chain.Status != "" && chain.Status != "SUCCESS" {
		return nil, &domain.GatewayError{Ticker: ticker, Op: "chain", Err: fmt.Errorf("chain status %q", chain.Status)}
	}

	contracts := make([]domain.Contract, 0, 64)
	for expKey, strikes := range chain.CallExpDateMap {
		expiration, err := parseExpirationKey(expKey)
		if err != nil {
			c.log.Warn().Str("ticker", ticker).Str("key", expKey).Msg("Skipping unparseable expiration key")
			continue
		}
		for _, raws := range strikes {
			for _, raw := range raws {
				contracts = append(contracts, toDomainContract(ticker, chain.UnderlyingPrice, expiration, raw))
			}
		}
	}

	c.log.Debug().Str("ticker", ticker).Int("contracts", len(contracts)).Msg("Fetched call chain")
	return contracts, nil
}

// GetContract fetches a single call contract by strike and expiration (YYYY-MM-DD)
func (c *Client) GetContract(ctx context.Context, ticker string, strike float64, expiration string) (*domain.Contract, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("contractType", "CALL")
	params.Set("strike", strconv.FormatFloat(strike, 'f', -1, 64))
	params.Set("fromDate", expiration)
	params.Set("toDate", expiration)
	endpoint := fmt.Sprintf("%s/marketdata/v1/chains?%s", c.baseURL, params.Encode())

	var chain chainResponse
	if err := c.getJSON(ctx, ticker, "contract", endpoint, &chain); err != nil {
		return nil, err
	}

	for expKey, strikes := range chain.CallExpDateMap {
		exp, err := parseExpirationKey(expKey)
		if err != nil {
			continue
		}
		for strikeKey, raws := range strikes {
			parsed, err := strconv.ParseFloat(strikeKey, 64)
			if err != nil || parsed != strike {
				continue
			}
			for _, raw := range raws {
				contract := toDomainContract(ticker, chain.UnderlyingPrice, exp, raw)
				return &contract, nil
			}
		}
	}

	return nil, fmt.Errorf("contract %s %.2f %s: %w", ticker, strike, expiration, domain.ErrNotFound)
}

// getJSON performs a GET with bounded retries and decodes the response body.
// Retries apply to network errors, 429 and 5xx responses with exponential
// backoff. 4xx responses other than 429 fail immediately.
func (c *Client) getJSON(ctx context.Context, ticker, op, endpoint string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			c.log.Warn().
				Str("ticker", ticker).
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c.throttle(ctx)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return &domain.GatewayError{Ticker: ticker, Op: op, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err = json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return &domain.GatewayError{Ticker: ticker, Op: op, Err: fmt.Errorf("decode response: %w", err)}
			}
			return nil
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		return &domain.GatewayError{Ticker: ticker, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return &domain.GatewayError{Ticker: ticker, Op: op, Err: fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)}
}

// throttle enforces the minimum delay between requests. Each caller
// reserves the next send slot under the lock, so concurrent callers are
// spaced out rather than released together.
func (c *Client) throttle(ctx context.Context) {
	if c.requestDelay <= 0 {
		return
	}

	c.mu.Lock()
	now := time.Now()
	slot := c.lastRequest.Add(c.requestDelay)
	if slot.Before(now) {
		slot = now
	}
	c.lastRequest = slot
	c.mu.Unlock()

	if wait := time.Until(slot); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}

// parseExpirationKey parses chain map keys of the form "2025-01-17:45"
func parseExpirationKey(key string) (time.Time, error) {
	datePart := key
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		datePart = key[:idx]
	}
	return time.Parse("2006-01-02", datePart)
}

// toDomainContract converts a raw chain entry. Volatility arrives in percent
// terms, so values above 1 are scaled down. The -999 sentinel used for
// missing greeks maps to a nil IV.
func toDomainContract(ticker string, underlying float64, expiration time.Time, raw rawContract) domain.Contract {
	var iv *float64
	if raw.Volatility > 0 && raw.Volatility != -999 {
		v := raw.Volatility
		if v > 1 {
			v /= 100
		}
		iv = &v
	}
	delta := raw.Delta
	if (delta <= 0 || delta == -999) && iv != nil && underlying > 0 && raw.StrikePrice > 0 {
		// Greeks are occasionally missing from the chain feed. A
		// Black-Scholes estimate keeps the contract screenable.
		years := time.Until(expiration).Hours() / 24 / 365
		delta = formulas.BSCallDelta(underlying, raw.StrikePrice, years, 0, *iv)
	}

	return domain.Contract{
		Ticker:          ticker,
		UnderlyingPrice: underlying,
		Strike:          raw.StrikePrice,
		Expiration:      expiration,
		Bid:             raw.Bid,
		Ask:             raw.Ask,
		Delta:           delta,
		IV:              iv,
		OpenInterest:    raw.OpenInterest,
	}
}
