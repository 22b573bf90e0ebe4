package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	mddomain "github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
)

// SnapshotDTO 快照查询响应。IsStale 由读方按当前时刻派生。
type SnapshotDTO struct {
	PortfolioID string                    `json:"portfolio_id"`
	TotalValue  decimal.Decimal           `json:"total_value"`
	Holdings    []domain.HoldingValuation `json:"holdings"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	IsStale     bool                      `json:"is_stale"`
	MarketPhase string                    `json:"market_phase"`
}

// HistoryDTO 历史序列查询响应
type HistoryDTO struct {
	PortfolioID string                  `json:"portfolio_id"`
	Granularity string                  `json:"granularity"`
	Series      []domain.SeriesPoint    `json:"series"`
	Benchmark   []domain.BenchmarkPoint `json:"benchmark,omitempty"`
	UpdatedAt   time.Time               `json:"updated_at"`
	IsStale     bool                    `json:"is_stale"`
}

// SnapshotQueryService 快照读路径。读路径从不触发重建，缓存缺失时
// 返回显式空快照而非错误。
type SnapshotQueryService struct {
	cache     domain.SnapshotCache
	threshold time.Duration
	now       func() time.Time
}

// NewSnapshotQueryService 创建快照查询服务
func NewSnapshotQueryService(cache domain.SnapshotCache, threshold time.Duration) *SnapshotQueryService {
	return &SnapshotQueryService{cache: cache, threshold: threshold, now: time.Now}
}

// WithQueryClock 注入时钟，测试用
func (s *SnapshotQueryService) WithQueryClock(now func() time.Time) *SnapshotQueryService {
	s.now = now
	return s
}

// GetSnapshot 读取组合快照。快照不存在时返回恒过期的空快照。
func (s *SnapshotQueryService) GetSnapshot(ctx context.Context, portfolioID string) (*SnapshotDTO, error) {
	snapshot, err := s.cache.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = domain.EmptySnapshot(portfolioID)
	}

	now := s.now()
	return &SnapshotDTO{
		PortfolioID: snapshot.PortfolioID,
		TotalValue:  snapshot.TotalValue,
		Holdings:    snapshot.Holdings,
		UpdatedAt:   snapshot.UpdatedAt,
		IsStale:     snapshot.IsStale(now, s.threshold),
		MarketPhase: string(mddomain.Phase(now)),
	}, nil
}

// GetHistory 读取组合历史序列。granularity 取 intraday 或 daily，
// 日线响应同时携带基准序列。
func (s *SnapshotQueryService) GetHistory(ctx context.Context, portfolioID string, granularity mddomain.Granularity) (*HistoryDTO, error) {
	snapshot, err := s.cache.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = domain.EmptySnapshot(portfolioID)
	}

	dto := &HistoryDTO{
		PortfolioID: snapshot.PortfolioID,
		Granularity: string(granularity),
		UpdatedAt:   snapshot.UpdatedAt,
		IsStale:     snapshot.IsStale(s.now(), s.threshold),
	}
	switch granularity {
	case mddomain.GranularityIntraday:
		dto.Series = snapshot.Intraday1D
	default:
		dto.Granularity = string(mddomain.GranularityDaily)
		dto.Series = snapshot.Daily30D
		dto.Benchmark = snapshot.Benchmark30D
	}
	return dto, nil
}
