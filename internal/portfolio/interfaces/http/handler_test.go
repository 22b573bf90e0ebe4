package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mddomain "github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/application"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
)

type cacheStub struct {
	snapshots map[string]*domain.PortfolioSnapshot
}

func (c *cacheStub) Get(ctx context.Context, id string) (*domain.PortfolioSnapshot, error) {
	return c.snapshots[id], nil
}
func (c *cacheStub) Put(ctx context.Context, s *domain.PortfolioSnapshot) error {
	c.snapshots[s.PortfolioID] = s
	return nil
}
func (c *cacheStub) GetMeta(ctx context.Context, id string) (*domain.CachedPortfolioMeta, error) {
	return nil, nil
}
func (c *cacheStub) PutMeta(ctx context.Context, meta *domain.CachedPortfolioMeta) {}
func (c *cacheStub) InvalidateMeta(ctx context.Context, id string)                 {}

type repoStub struct {
	portfolio *domain.Portfolio
	holdings  []*domain.Holding
}

func (r *repoStub) ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	if r.portfolio == nil {
		return nil, nil
	}
	return []*domain.Portfolio{r.portfolio}, nil
}
func (r *repoStub) GetPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	if r.portfolio != nil && r.portfolio.PortfolioID == id {
		return r.portfolio, nil
	}
	return nil, nil
}
func (r *repoStub) ListHoldings(ctx context.Context, id string) ([]*domain.Holding, error) {
	return r.holdings, nil
}
func (r *repoStub) ListAllHoldings(ctx context.Context) ([]*domain.Holding, error) {
	return r.holdings, nil
}

type fetcherStub struct {
	quotes map[string]*mddomain.Quote
}

func (f *fetcherStub) GetQuote(ctx context.Context, symbol string) (*mddomain.Quote, error) {
	return f.quotes[symbol], nil
}
func (f *fetcherStub) GetQuotes(ctx context.Context, symbols []string) (map[string]*mddomain.Quote, error) {
	out := make(map[string]*mddomain.Quote)
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}
func (f *fetcherStub) GetSymbolInfo(ctx context.Context, symbol string) (*mddomain.SymbolInfo, error) {
	return nil, nil
}
func (f *fetcherStub) GetHistory(ctx context.Context, symbol string, from, to time.Time, g mddomain.Granularity) ([]mddomain.HistoricalPoint, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *cacheStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := &cacheStub{snapshots: make(map[string]*domain.PortfolioSnapshot)}
	repo := &repoStub{
		portfolio: &domain.Portfolio{PortfolioID: "p1", Name: "Retirement"},
		holdings: []*domain.Holding{
			{PortfolioID: "p1", Symbol: "AAPL", Quantity: decimal.NewFromInt(10)},
		},
	}
	fetcher := &fetcherStub{quotes: map[string]*mddomain.Quote{
		"AAPL": mddomain.NewQuote(decimal.NewFromInt(150), decimal.NewFromInt(100)),
	}}

	snapshotSvc := application.NewSnapshotService(repo, cache, nil, fetcher, "SPY")
	querySvc := application.NewSnapshotQueryService(cache, 10*time.Minute)

	r := gin.New()
	NewHandler(querySvc, snapshotSvc, fetcher, nil, "portfolio.refresh").RegisterRoutes(r)
	return r, cache
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetSnapshotEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/v1/portfolios/ghost/snapshot")
	require.Equal(t, http.StatusOK, w.Code, "快照缺失返回空快照而非错误")

	var body struct {
		PortfolioID string `json:"portfolio_id"`
		IsStale     bool   `json:"is_stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ghost", body.PortfolioID)
	assert.True(t, body.IsStale)
}

func TestGetSnapshotAfterRefresh(t *testing.T) {
	r, cache := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/v1/portfolios/p1/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cache.snapshots["p1"])

	w = doRequest(r, http.MethodGet, "/v1/portfolios/p1/snapshot")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		TotalValue decimal.Decimal `json:"total_value"`
		IsStale    bool            `json:"is_stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.TotalValue.Equal(decimal.NewFromInt(1500)), "got %s", body.TotalValue)
	assert.False(t, body.IsStale)
}

func TestGetHistoryRejectsUnknownGranularity(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/v1/portfolios/p1/history?granularity=weekly")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/v1/market/session")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Phase)
}

func TestGetQuote(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/v1/market/quote?symbol=AAPL")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/v1/market/quote?symbol=NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/v1/market/quote")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
