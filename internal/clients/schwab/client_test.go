package schwab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ditm/internal/domain"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "test-token", 2, 0, zerolog.Nop())
}

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"AAPL": {"quote": {"lastPrice": 184.25}}}`))
	}))
	defer server.Close()

	price, err := newTestClient(server.URL).GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 184.25, price)
}

func TestGetQuoteMissingTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetQuote(context.Background(), "AAPL")
	require.Error(t, err)

	var gatewayErr *domain.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, "AAPL", gatewayErr.Ticker)
}

func TestGetCallChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CALL", r.URL.Query().Get("contractType"))
		w.Write([]byte(`{
			"symbol": "AAPL",
			"status": "SUCCESS",
			"underlyingPrice": 185.0,
			"callExpDateMap": {
				"2026-01-16:139": {
					"150.0": [{"strikePrice": 150.0, "bid": 37.10, "ask": 37.90, "delta": 0.92, "volatility": 24.5, "openInterest": 1200}],
					"160.0": [{"strikePrice": 160.0, "bid": 28.00, "ask": 28.80, "delta": 0.87, "volatility": 26.0, "openInterest": 800}]
				}
			}
		}`))
	}))
	defer server.Close()

	contracts, err := newTestClient(server.URL).GetCallChain(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	for _, c := range contracts {
		assert.Equal(t, "AAPL", c.Ticker)
		assert.Equal(t, 185.0, c.UnderlyingPrice)
		assert.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), c.Expiration)
		// Percent volatility is normalized to a fraction
		require.NotNil(t, c.IV)
		assert.Less(t, *c.IV, 1.0)
	}
}

func TestGetCallChainMissingIV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"callExpDateMap": {
				"2026-01-16:139": {
					"150.0": [{"strikePrice": 150.0, "bid": 37.10, "ask": 37.90, "delta": 0.92, "volatility": -999, "openInterest": 1200}]
				}
			}
		}`))
	}))
	defer server.Close()

	contracts, err := newTestClient(server.URL).GetCallChain(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Nil(t, contracts[0].IV)
}

func TestGetContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "150", r.URL.Query().Get("strike"))
		assert.Equal(t, "2026-01-16", r.URL.Query().Get("fromDate"))
		w.Write([]byte(`{
			"underlyingPrice": 185.0,
			"callExpDateMap": {
				"2026-01-16:139": {
					"150.0": [{"strikePrice": 150.0, "bid": 37.10, "ask": 37.90, "delta": 0.92, "volatility": 0.245, "openInterest": 1200}]
				}
			}
		}`))
	}))
	defer server.Close()

	contract, err := newTestClient(server.URL).GetContract(context.Background(), "AAPL", 150, "2026-01-16")
	require.NoError(t, err)
	assert.Equal(t, 150.0, contract.Strike)
	assert.Equal(t, 0.92, contract.Delta)
}

func TestGetContractNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"callExpDateMap": {}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetContract(context.Background(), "AAPL", 150, "2026-01-16")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"AAPL": {"quote": {"lastPrice": 100.0}}}`))
	}))
	defer server.Close()

	price, err := newTestClient(server.URL).GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)
	assert.Equal(t, 3, attempts)
}

func TestNoRetryOnClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var gatewayErr *domain.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, http.StatusUnauthorized, gatewayErr.StatusCode)
}

func TestMissingDeltaFallsBackToBlackScholes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"symbol": "AAPL",
			"status": "SUCCESS",
			"underlyingPrice": 185.0,
			"callExpDateMap": {
				"2030-01-18:503": {
					"150.0": [{"strikePrice": 150.0, "bid": 37.10, "ask": 37.90, "delta": -999.0, "volatility": 24.5, "openInterest": 1200}]
				}
			}
		}`))
	}))
	defer server.Close()

	contracts, err := newTestClient(server.URL).GetCallChain(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, contracts, 1)

	// Deep ITM call with over a year of runway sits well above 0.5 delta.
	assert.Greater(t, contracts[0].Delta, 0.5)
	assert.Less(t, contracts[0].Delta, 1.0)
}

func TestThrottleSpacesConcurrentRequests(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.Write([]byte(`{"symbol": "AAPL", "status": "SUCCESS", "underlyingPrice": 185.0, "callExpDateMap": {}}`))
	}))
	defer server.Close()

	delay := 50 * time.Millisecond
	client := NewClient(server.URL, "test-token", 2, delay, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetCallChain(context.Background(), "AAPL")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, hits, 4)
	sort.Slice(hits, func(i, j int) bool { return hits[i].Before(hits[j]) })
	for i := 1; i < len(hits); i++ {
		gap := hits[i].Sub(hits[i-1])
		assert.GreaterOrEqual(t, gap, delay/2, "request %d arrived %v after the previous one", i, gap)
	}
}
