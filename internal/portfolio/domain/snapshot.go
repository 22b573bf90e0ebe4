// Package domain 投资组合估值快照的领域模型与仓储契约
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingValuation 单个持仓的估值明细
type HoldingValuation struct {
	// Symbol 标的代码
	Symbol string `json:"symbol"`
	// DisplayName 展示名称
	DisplayName string `json:"display_name"`
	// Quantity 持仓数量
	Quantity decimal.Decimal `json:"quantity"`
	// Price 现价
	Price decimal.Decimal `json:"price"`
	// PreviousClose 昨收价
	PreviousClose decimal.Decimal `json:"previous_close"`
	// Value 持仓市值
	Value decimal.Decimal `json:"value"`
	// DayChangePercent 当日涨跌幅（百分比）
	DayChangePercent decimal.Decimal `json:"day_change_percent"`
	// AllocationPercent 占组合比重（百分比）
	AllocationPercent decimal.Decimal `json:"allocation_percent"`
	// CostBasis 持仓成本
	CostBasis decimal.Decimal `json:"cost_basis"`
	// ProfitLoss 浮动盈亏
	ProfitLoss decimal.Decimal `json:"profit_loss"`
	// ProfitLossPercent 浮动盈亏率（百分比）
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
}

// SeriesPoint 估值序列点
type SeriesPoint struct {
	// Date 时间点
	Date time.Time `json:"date"`
	// Value 组合总值
	Value decimal.Decimal `json:"value"`
}

// BenchmarkPoint 基准序列点，表示相对窗口起点的涨跌幅
type BenchmarkPoint struct {
	// Date 时间点
	Date time.Time `json:"date"`
	// ChangePercent 相对窗口起点的涨跌幅（百分比）
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// PortfolioSnapshot 组合估值快照。每次刷新整体替换，写入后只读，
// 不存在部分更新。
type PortfolioSnapshot struct {
	// PortfolioID 组合 ID
	PortfolioID string `json:"portfolio_id"`
	// TotalValue 组合总值
	TotalValue decimal.Decimal `json:"total_value"`
	// Holdings 持仓估值明细，顺序稳定
	Holdings []HoldingValuation `json:"holdings"`
	// Intraday1D 当日日内估值序列
	Intraday1D []SeriesPoint `json:"intraday_1d"`
	// Daily30D 近 30 日按日估值序列
	Daily30D []SeriesPoint `json:"daily_30d"`
	// Benchmark30D 近 30 日基准涨跌序列
	Benchmark30D []BenchmarkPoint `json:"benchmark_30d"`
	// UpdatedAt 快照生成时刻
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStale 判断快照是否过期。过期由读方按当前时刻派生，不落库。
func (s *PortfolioSnapshot) IsStale(now time.Time, threshold time.Duration) bool {
	if s.UpdatedAt.IsZero() {
		return true
	}
	return now.Sub(s.UpdatedAt) > threshold
}

// EmptySnapshot 返回组合尚未生成快照时的显式空值：空序列、零值、恒过期。
// 持仓尚未定价是正常的瞬时状态，不是错误。
func EmptySnapshot(portfolioID string) *PortfolioSnapshot {
	return &PortfolioSnapshot{
		PortfolioID:  portfolioID,
		TotalValue:   decimal.Zero,
		Holdings:     []HoldingValuation{},
		Intraday1D:   []SeriesPoint{},
		Daily30D:     []SeriesPoint{},
		Benchmark30D: []BenchmarkPoint{},
	}
}

// CachedPortfolioMeta 组合元信息的非敏感投影，仅存于快速层，
// 绝不包含任何凭据材料。
type CachedPortfolioMeta struct {
	// PortfolioID 组合 ID
	PortfolioID string `json:"portfolio_id"`
	// DisplayName 展示名称
	DisplayName string `json:"display_name"`
	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`
	// IsPrivate 是否私有
	IsPrivate bool `json:"is_private"`
	// Visibility 可见性
	Visibility string `json:"visibility"`
}
