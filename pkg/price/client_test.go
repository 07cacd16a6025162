package price

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCoinGecko(t *testing.T, h http.HandlerFunc) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewCoinGecko(Opts{BaseURL: srv.URL, RPS: 1000, Logger: zaptest.NewLogger(t)})
}

func TestCoinID(t *testing.T) {
	id, err := CoinID("POKT")
	require.NoError(t, err)
	assert.Equal(t, "pocket-network", id)

	id, err = CoinID("eth")
	require.NoError(t, err)
	assert.Equal(t, "ethereum", id)

	_, err = CoinID("doge")
	require.ErrorIs(t, err, ErrUnknownCoin)
}

func TestCurrent(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "pocket-network", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_ = json.NewEncoder(w).Encode(map[string]any{"pocket-network": map[string]any{"usd": 0.0421}})
	})

	p, err := c.Current(context.Background(), "pokt", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 0.0421, p, 1e-12)
}

func TestCurrentMissingCurrency(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pocket-network":{}}`))
	})

	_, err := c.Current(context.Background(), "pokt", "usd")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestHistoryUsesDayMonthYear(t *testing.T) {
	var gotDate string
	c := newTestCoinGecko(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/ethereum/history", r.URL.Path)
		gotDate = r.URL.Query().Get("date")
		_, _ = w.Write([]byte(`{"id":"ethereum","market_data":{"current_price":{"usd":1834.5,"eur":1700}}}`))
	})

	p, err := c.History(context.Background(), "eth", "usd", time.Date(2023, 3, 7, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 1834.5, p, 1e-9)
	assert.Equal(t, "07-03-2023", gotDate)
}

func TestHistoryWithoutMarketData(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pocket-network"}`))
	})

	_, err := c.History(context.Background(), "pokt", "usd", time.Now())
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestNon200(t *testing.T) {
	c := newTestCoinGecko(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("throttled"))
	})

	_, err := c.Current(context.Background(), "pokt", "usd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "throttled")
}

func TestAPIKeyHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("x-cg-demo-api-key")
		_, _ = w.Write([]byte(`{"pocket-network":{"usd":1}}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(Opts{BaseURL: srv.URL, APIKey: "cg-key", RPS: 1000})
	_, err := c.Current(context.Background(), "pokt", "usd")
	require.NoError(t, err)
	assert.Equal(t, "cg-key", got)
}
