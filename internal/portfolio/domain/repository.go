package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SnapshotTier 快照存储层契约，快速层与持久层共同实现。
// 快照不存在时返回 (nil, nil)。
type SnapshotTier interface {
	GetSnapshot(ctx context.Context, portfolioID string) (*PortfolioSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *PortfolioSnapshot) error
}

// MetaTier 组合元信息缓存契约，仅由快速层实现
type MetaTier interface {
	GetMeta(ctx context.Context, portfolioID string) (*CachedPortfolioMeta, error)
	SaveMeta(ctx context.Context, meta *CachedPortfolioMeta) error
	DeleteMeta(ctx context.Context, portfolioID string) error
}

// PriceTier 单标的价格缓存契约，快速层实现，刷新周期内批量预热
type PriceTier interface {
	SavePrices(ctx context.Context, prices map[string]decimal.Decimal) error
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// SnapshotCache 两级快照缓存对外契约：读路径先快速层后持久层，
// 写路径先持久层后快速层。
type SnapshotCache interface {
	// Get 读取快照，两层皆无时返回 (nil, nil)
	Get(ctx context.Context, portfolioID string) (*PortfolioSnapshot, error)
	// Put 写入快照。持久层失败即整体失败；快速层失败被吞掉。
	Put(ctx context.Context, snapshot *PortfolioSnapshot) error
	// GetMeta 读取组合元信息缓存，未命中返回 (nil, nil)
	GetMeta(ctx context.Context, portfolioID string) (*CachedPortfolioMeta, error)
	// PutMeta 写入组合元信息缓存，尽力而为
	PutMeta(ctx context.Context, meta *CachedPortfolioMeta)
	// InvalidateMeta 失效组合元信息缓存
	InvalidateMeta(ctx context.Context, portfolioID string)
}

// PortfolioRepository 组合与持仓读取契约（外部关系库）
type PortfolioRepository interface {
	// ListPortfolios 列出全部组合
	ListPortfolios(ctx context.Context) ([]*Portfolio, error)
	// GetPortfolio 按 ID 读取组合，不存在时返回 (nil, nil)
	GetPortfolio(ctx context.Context, portfolioID string) (*Portfolio, error)
	// ListHoldings 列出组合持仓
	ListHoldings(ctx context.Context, portfolioID string) ([]*Holding, error)
	// ListAllHoldings 列出全部持仓（刷新周期收集去重标的用）
	ListAllHoldings(ctx context.Context) ([]*Holding, error)
}
