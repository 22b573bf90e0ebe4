// Package application 组合快照的应用服务：刷新构建与查询
package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	mddomain "github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
	"github.com/wyfcoding/portfoliopulse/pkg/metrics"
)

// dailyWindowDays 按日序列与基准序列的滚动窗口长度
const dailyWindowDays = 30

// refreshLockKey 刷新周期互斥锁键，防止并发周期互相踩踏
const refreshLockKey = "refresh:lock"

// MarketDataFetcher 行情获取契约，由弹性行情抓取器实现
type MarketDataFetcher interface {
	GetQuote(ctx context.Context, symbol string) (*mddomain.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]*mddomain.Quote, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*mddomain.SymbolInfo, error)
	GetHistory(ctx context.Context, symbol string, from, to time.Time, granularity mddomain.Granularity) ([]mddomain.HistoricalPoint, error)
}

// RefreshLocker 刷新周期互斥锁契约，Redis SetNX 实现
type RefreshLocker interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
}

// SnapshotService 快照构建服务。由带外调度触发，按组合重建完整快照
// 并整体写入两级缓存；读路径从不触发重建。
type SnapshotService struct {
	portfolios      domain.PortfolioRepository
	cache           domain.SnapshotCache
	prices          domain.PriceTier
	fetcher         MarketDataFetcher
	locker          RefreshLocker
	metrics         *metrics.Metrics
	benchmarkSymbol string
	lockTTL         time.Duration
	now             func() time.Time

	// 标的展示名的进程内缓存，低频变化，周期内无需重复拉取
	namesMu sync.Mutex
	names   map[string]string
}

// SnapshotServiceOption 快照服务可选项
type SnapshotServiceOption func(*SnapshotService)

// WithRefreshLocker 启用刷新周期互斥锁
func WithRefreshLocker(locker RefreshLocker, ttl time.Duration) SnapshotServiceOption {
	return func(s *SnapshotService) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

// WithServiceMetrics 启用刷新周期指标
func WithServiceMetrics(m *metrics.Metrics) SnapshotServiceOption {
	return func(s *SnapshotService) { s.metrics = m }
}

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) SnapshotServiceOption {
	return func(s *SnapshotService) { s.now = now }
}

// NewSnapshotService 创建快照构建服务
func NewSnapshotService(
	portfolios domain.PortfolioRepository,
	cache domain.SnapshotCache,
	prices domain.PriceTier,
	fetcher MarketDataFetcher,
	benchmarkSymbol string,
	opts ...SnapshotServiceOption,
) *SnapshotService {
	s := &SnapshotService{
		portfolios:      portfolios,
		cache:           cache,
		prices:          prices,
		fetcher:         fetcher,
		benchmarkSymbol: benchmarkSymbol,
		now:             time.Now,
		names:           make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh 重建单个组合的快照并写入缓存。幂等：同一分钟内重复执行
// 不会重复追加日内点，按日序列按交易日日期覆盖而非追加。
func (s *SnapshotService) Refresh(ctx context.Context, portfolioID string) error {
	portfolio, err := s.portfolios.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("读取组合失败: %w", err)
	}
	if portfolio == nil {
		return fmt.Errorf("组合不存在: %s", portfolioID)
	}
	return s.refreshPortfolio(ctx, portfolio, nil)
}

// RefreshAll 重建全部组合的快照。先对全量去重标的做一次批量预取，
// 单个组合失败只记日志并继续，最终汇总失败数。
func (s *SnapshotService) RefreshAll(ctx context.Context) error {
	if s.locker != nil {
		acquired, err := s.locker.SetNX(ctx, refreshLockKey, s.now().Unix(), s.lockTTL)
		if err != nil {
			logger.Warn(ctx, "刷新锁获取出错，继续执行", "error", err)
		} else if !acquired {
			logger.Info(ctx, "另一刷新周期正在进行，跳过本轮")
			return nil
		}
	}

	started := s.now()

	portfolios, err := s.portfolios.ListPortfolios(ctx)
	if err != nil {
		s.recordCycle("error", started)
		return fmt.Errorf("列出组合失败: %w", err)
	}

	holdings, err := s.portfolios.ListAllHoldings(ctx)
	if err != nil {
		s.recordCycle("error", started)
		return fmt.Errorf("列出持仓失败: %w", err)
	}

	quotes, err := s.fetcher.GetQuotes(ctx, distinctSymbols(holdings))
	if err != nil {
		s.recordCycle("error", started)
		return fmt.Errorf("批量行情预取失败: %w", err)
	}
	s.warmPrices(ctx, quotes)

	var failed int
	for _, p := range portfolios {
		if err := s.refreshPortfolio(ctx, p, quotes); err != nil {
			logger.Error(ctx, "组合快照刷新失败", "portfolio_id", p.PortfolioID, "error", err)
			failed++
		}
	}

	outcome := "success"
	if failed > 0 {
		outcome = "partial"
	}
	s.recordCycle(outcome, started)

	logger.Info(ctx, "刷新周期完成",
		"portfolios", len(portfolios), "failed", failed,
		"duration", s.now().Sub(started).String())
	if failed > 0 {
		return fmt.Errorf("%d/%d 个组合刷新失败", failed, len(portfolios))
	}
	return nil
}

// refreshPortfolio 构建并写入一个组合的快照。prefetched 为本周期已
// 预取的行情，为 nil 时按需拉取。
func (s *SnapshotService) refreshPortfolio(ctx context.Context, portfolio *domain.Portfolio, prefetched map[string]*mddomain.Quote) error {
	holdings, err := s.portfolios.ListHoldings(ctx, portfolio.PortfolioID)
	if err != nil {
		return fmt.Errorf("读取持仓失败: %w", err)
	}

	quotes := prefetched
	if quotes == nil {
		quotes, err = s.fetcher.GetQuotes(ctx, distinctSymbols(holdings))
		if err != nil {
			return fmt.Errorf("批量行情获取失败: %w", err)
		}
		s.warmPrices(ctx, quotes)
	}

	// 上一份快照用于兜底未定价持仓与序列延续
	prev, err := s.cache.Get(ctx, portfolio.PortfolioID)
	if err != nil {
		return fmt.Errorf("读取既有快照失败: %w", err)
	}
	if prev == nil {
		prev = domain.EmptySnapshot(portfolio.PortfolioID)
	}

	now := s.now()
	valuations, totalValue := s.buildValuations(ctx, holdings, quotes, prev)

	snapshot := &domain.PortfolioSnapshot{
		PortfolioID:  portfolio.PortfolioID,
		TotalValue:   totalValue,
		Holdings:     valuations,
		Intraday1D:   buildIntraday(prev.Intraday1D, now, totalValue),
		Daily30D:     upsertDaily(prev.Daily30D, now, totalValue),
		Benchmark30D: s.buildBenchmark(ctx, prev.Benchmark30D, now),
		UpdatedAt:    now,
	}

	if err := s.cache.Put(ctx, snapshot); err != nil {
		return fmt.Errorf("快照写入失败: %w", err)
	}
	s.cache.PutMeta(ctx, portfolio.Meta())
	return nil
}

// buildValuations 计算持仓估值明细与组合总值。无法定价的持仓沿用
// 上一份快照的价格，否则按零计，绝不中断整个快照。
func (s *SnapshotService) buildValuations(ctx context.Context, holdings []*domain.Holding, quotes map[string]*mddomain.Quote, prev *domain.PortfolioSnapshot) ([]domain.HoldingValuation, decimal.Decimal) {
	prevBySymbol := make(map[string]domain.HoldingValuation, len(prev.Holdings))
	for _, h := range prev.Holdings {
		prevBySymbol[h.Symbol] = h
	}

	valuations := make([]domain.HoldingValuation, 0, len(holdings))
	totalValue := decimal.Zero
	for _, h := range holdings {
		v := domain.HoldingValuation{
			Symbol:    h.Symbol,
			Quantity:  h.Quantity,
			CostBasis: h.CostBasis,
		}

		if quote := quotes[h.Symbol]; quote != nil {
			v.Price = quote.CurrentPrice
			v.PreviousClose = quote.PreviousClose
			v.DayChangePercent = quote.ChangePercent
		} else if p, ok := prevBySymbol[h.Symbol]; ok {
			logger.Warn(ctx, "标的定价失败，沿用上次价格", "symbol", h.Symbol)
			v.Price = p.Price
			v.PreviousClose = p.PreviousClose
			v.DayChangePercent = p.DayChangePercent
		} else {
			logger.Warn(ctx, "标的定价失败且无历史价格，按零计", "symbol", h.Symbol)
		}

		v.DisplayName = s.displayName(ctx, h.Symbol)
		v.Value = h.Quantity.Mul(v.Price)
		v.ProfitLoss = v.Value.Sub(h.CostBasis)
		if h.CostBasis.IsPositive() {
			v.ProfitLossPercent = v.ProfitLoss.Div(h.CostBasis).Mul(decimal.NewFromInt(100))
		}

		totalValue = totalValue.Add(v.Value)
		valuations = append(valuations, v)
	}

	if totalValue.IsPositive() {
		for i := range valuations {
			valuations[i].AllocationPercent = valuations[i].Value.
				Div(totalValue).
				Mul(decimal.NewFromInt(100))
		}
	}
	return valuations, totalValue
}

// buildIntraday 延续当日日内序列：仅保留本交易日的点，开盘时段内
// 按整分钟时间戳覆盖写入当前总值。
func buildIntraday(prev []domain.SeriesPoint, now time.Time, totalValue decimal.Decimal) []domain.SeriesPoint {
	dayStart := mddomain.StartOfTradingDay(now)
	points := make([]domain.SeriesPoint, 0, len(prev)+1)
	for _, p := range prev {
		if !p.Date.Before(dayStart) {
			points = append(points, p)
		}
	}

	if mddomain.Phase(now) != mddomain.PhaseOpen {
		return points
	}

	minute := now.Truncate(time.Minute)
	for i := range points {
		if points[i].Date.Equal(minute) {
			points[i].Value = totalValue
			return points
		}
	}
	return append(points, domain.SeriesPoint{Date: minute, Value: totalValue})
}

// upsertDaily 以交易所本地日期为键覆盖写入按日序列，窗口裁剪为 30 条
func upsertDaily(prev []domain.SeriesPoint, now time.Time, totalValue decimal.Decimal) []domain.SeriesPoint {
	day := mddomain.StartOfTradingDay(now)
	points := make([]domain.SeriesPoint, 0, len(prev)+1)
	replaced := false
	for _, p := range prev {
		if p.Date.Equal(day) {
			points = append(points, domain.SeriesPoint{Date: day, Value: totalValue})
			replaced = true
			continue
		}
		points = append(points, p)
	}
	if !replaced {
		points = append(points, domain.SeriesPoint{Date: day, Value: totalValue})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	if len(points) > dailyWindowDays {
		points = points[len(points)-dailyWindowDays:]
	}
	return points
}

// buildBenchmark 拉取基准标的近 30 日日线，换算为相对窗口首日收盘的
// 涨跌幅。拉取失败沿用上一份快照的基准序列。
func (s *SnapshotService) buildBenchmark(ctx context.Context, prev []domain.BenchmarkPoint, now time.Time) []domain.BenchmarkPoint {
	history, err := s.fetcher.GetHistory(ctx, s.benchmarkSymbol,
		now.AddDate(0, 0, -dailyWindowDays), now, mddomain.GranularityDaily)
	if err != nil {
		logger.Warn(ctx, "基准历史获取失败，沿用上次序列", "symbol", s.benchmarkSymbol, "error", err)
		return prev
	}
	if len(history) == 0 {
		return prev
	}

	base := history[0].Close
	points := make([]domain.BenchmarkPoint, 0, len(history))
	for _, h := range history {
		changePercent := decimal.Zero
		if base.IsPositive() {
			changePercent = h.Close.Sub(base).Div(base).Mul(decimal.NewFromInt(100))
		}
		points = append(points, domain.BenchmarkPoint{Date: h.Timestamp, ChangePercent: changePercent})
	}
	return points
}

// displayName 解析标的展示名，进程内缓存，失败时回退标的代码
func (s *SnapshotService) displayName(ctx context.Context, symbol string) string {
	s.namesMu.Lock()
	if name, ok := s.names[symbol]; ok {
		s.namesMu.Unlock()
		return name
	}
	s.namesMu.Unlock()

	name := symbol
	info, err := s.fetcher.GetSymbolInfo(ctx, symbol)
	if err == nil && info != nil && info.DisplayName != "" {
		name = info.DisplayName
	}

	s.namesMu.Lock()
	s.names[symbol] = name
	s.namesMu.Unlock()
	return name
}

// warmPrices 将本轮拉取的现价批量预热进价格缓存，尽力而为
func (s *SnapshotService) warmPrices(ctx context.Context, quotes map[string]*mddomain.Quote) {
	if s.prices == nil || len(quotes) == 0 {
		return
	}
	prices := make(map[string]decimal.Decimal, len(quotes))
	for symbol, quote := range quotes {
		if quote != nil {
			prices[symbol] = quote.CurrentPrice
		}
	}
	if err := s.prices.SavePrices(ctx, prices); err != nil {
		logger.Warn(ctx, "价格缓存预热失败", "error", err)
	}
}

func (s *SnapshotService) recordCycle(outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	m := s.metrics
	m.RefreshCyclesTotal.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(s.now().Sub(started).Seconds())
}

// distinctSymbols 收集持仓中的去重标的列表，顺序稳定
func distinctSymbols(holdings []*domain.Holding) []string {
	seen := make(map[string]struct{}, len(holdings))
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if _, ok := seen[h.Symbol]; ok {
			continue
		}
		seen[h.Symbol] = struct{}{}
		symbols = append(symbols, h.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}
