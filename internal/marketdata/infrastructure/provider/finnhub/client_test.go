package finnhub

import (
	"context"
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
	return New(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: 2 * time.Second})
}

func TestFetchQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"c": 150.0, "pc": 100.0, "h": 151.0, "l": 148.0, "o": 149.0, "t": 1756600000}`))
	})

	quote, err := c.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.True(t, quote.CurrentPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, quote.ChangePercent.Equal(decimal.NewFromInt(50)))
}

func TestFetchQuoteAllZeroIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"c": 0, "pc": 0}`))
	})

	_, err := c.FetchQuote(context.Background(), "NOPE")
	assert.True(t, domain.IsNotFound(err))
}

func TestFetchQuoteClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"429 可重试", http.StatusTooManyRequests, true},
		{"500 可重试", http.StatusInternalServerError, true},
		{"503 可重试", http.StatusServiceUnavailable, true},
		{"400 终态", http.StatusBadRequest, false},
		{"401 终态", http.StatusUnauthorized, false},
		{"404 终态", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.FetchQuote(context.Background(), "AAPL")
			require.Error(t, err)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))

			var perr *domain.ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, providerName, perr.Provider)
			assert.Equal(t, tt.status, perr.StatusCode)
		})
	}
}

func TestFetchQuoteNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 立即关闭，制造连接失败

	c := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second})
	_, err := c.FetchQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

func TestFetchSymbolInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/profile2", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "Apple Inc", "ticker": "AAPL", "type": "Common Stock"}`))
	})

	info, err := c.FetchSymbolInfo(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", info.DisplayName)
	assert.Equal(t, domain.KindCommonStock, info.Kind)
}

func TestFetchSymbolInfoEmptyIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	_, err := c.FetchSymbolInfo(context.Background(), "NOPE")
	assert.True(t, domain.IsNotFound(err))
}

func TestMapInstrumentKind(t *testing.T) {
	assert.Equal(t, domain.KindETF, mapInstrumentKind("ETP"))
	assert.Equal(t, domain.KindMutualFund, mapInstrumentKind("Open-End Fund"))
	assert.Equal(t, domain.KindCrypto, mapInstrumentKind("crypto"))
	assert.Equal(t, domain.KindOther, mapInstrumentKind("Warrant"))
}

func TestFetchHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		w.Header().Set("Content-Type", "application/json")
		// 乱序时间戳与一个无效收盘点
		w.Write([]byte(`{"s": "ok", "t": [1756300000, 1756100000, 1756200000], "c": [103.0, 101.0, 0]}`))
	})

	points, err := c.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, 0, -30), time.Now(), domain.GranularityDaily)
	require.NoError(t, err)
	require.Len(t, points, 2, "无效收盘点应被丢弃")
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp), "序列应升序")
	assert.True(t, points[0].Close.Equal(decimal.NewFromInt(101)))
	assert.True(t, points[1].Close.Equal(decimal.NewFromInt(103)))
}

func TestFetchHistoryIntradayResolution(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("resolution"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"s": "no_data"}`))
	})

	points, err := c.FetchHistory(context.Background(), "AAPL",
		time.Now().AddDate(0, 0, -1), time.Now(), domain.GranularityIntraday)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestFetchHistoryMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"意外状态", `{"s": "weird"}`},
		{"数组长度不一致", `{"s": "ok", "t": [1756100000], "c": [101.0, 102.0]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			})

			_, err := c.FetchHistory(context.Background(), "AAPL",
				time.Now().AddDate(0, 0, -30), time.Now(), domain.GranularityDaily)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
			assert.False(t, domain.IsRetryable(err), "畸形报文重试无意义")
		})
	}
}
