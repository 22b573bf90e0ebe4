package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func chartBody(meta string, timestamps string, closes string) string {
	return fmt.Sprintf(`{"chart": {"result": [{"meta": %s, "timestamp": %s,
		"indicators": {"quote": [{"close": %s}]}}], "error": null}}`, meta, timestamps, closes)
}

func TestFetchQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody(
			`{"symbol": "AAPL", "regularMarketPrice": 150.0, "chartPreviousClose": 100.0}`,
			"[]", "[]"))
	})

	quote, err := c.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, quote.CurrentPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, quote.ChangePercent.Equal(decimal.NewFromInt(50)))
}

func TestFetchQuoteNotFoundVariants(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"HTTP 404", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"chart error Not Found", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found"}}}`)
		}},
		{"结果为空", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"chart": {"result": [], "error": null}}`)
		}},
		{"报价全零", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, chartBody(`{"regularMarketPrice": 0, "chartPreviousClose": 0}`, "[]", "[]"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.FetchQuote(context.Background(), "NOPE")
			assert.True(t, domain.IsNotFound(err))
		})
	}
}

func TestFetchQuoteClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.FetchQuote(context.Background(), "AAPL")
			require.Error(t, err)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestFetchSymbolInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody(
			`{"symbol": "VTI", "instrumentType": "ETF", "longName": "Vanguard Total Stock Market ETF",
			  "regularMarketPrice": 250.0, "chartPreviousClose": 248.0}`,
			"[]", "[]"))
	})

	info, err := c.FetchSymbolInfo(context.Background(), "VTI")
	require.NoError(t, err)
	assert.Equal(t, "Vanguard Total Stock Market ETF", info.DisplayName)
	assert.Equal(t, domain.KindETF, info.Kind)
}

func TestFetchSymbolInfoFallsBackToShortName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody(
			`{"symbol": "BTC-USD", "instrumentType": "CRYPTOCURRENCY", "shortName": "Bitcoin USD",
			  "regularMarketPrice": 60000.0, "chartPreviousClose": 59000.0}`,
			"[]", "[]"))
	})

	info, err := c.FetchSymbolInfo(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin USD", info.DisplayName)
	assert.Equal(t, domain.KindCrypto, info.Kind)
}

func TestFetchHistoryDropsNullCloses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		w.Header().Set("Content-Type", "application/json")
		// 乱序时间戳，含 null 与零收盘点
		fmt.Fprint(w, chartBody(
			`{"symbol": "AAPL", "regularMarketPrice": 103.0, "chartPreviousClose": 100.0}`,
			"[1756300000, 1756100000, 1756200000, 1756400000]",
			"[103.0, 101.0, null, 0]"))
	})

	points, err := c.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, 0, -30), time.Now(), domain.GranularityDaily)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp))
	assert.True(t, points[0].Close.Equal(decimal.NewFromInt(101)))
	assert.True(t, points[1].Close.Equal(decimal.NewFromInt(103)))
}

func TestFetchHistoryIntradayInterval(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody(`{"regularMarketPrice": 1, "chartPreviousClose": 1}`, "[]", "[]"))
	})

	points, err := c.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, 0, -1), time.Now(), domain.GranularityIntraday)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestFetchHistoryLengthMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody(`{"regularMarketPrice": 1, "chartPreviousClose": 1}`,
			"[1756100000]", "[101.0, 102.0]"))
	})

	_, err := c.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, 0, -30), time.Now(), domain.GranularityDaily)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}
