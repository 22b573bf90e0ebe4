// Package persistence 组合快照的两级缓存编排
package persistence

import (
	"context"
	"fmt"

	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
	"github.com/wyfcoding/portfoliopulse/pkg/metrics"
)

// TieredSnapshotCache 两级快照缓存。快速层（Redis）优先读、
// 持久层（MySQL）兜底并回填；写入先落持久层再同步快速层。
// 快速层的任何故障都被吞掉并降级，持久层是唯一事实来源。
type TieredSnapshotCache struct {
	fast    fastTier
	durable domain.SnapshotTier
	metrics *metrics.Metrics
}

// fastTier 快速层承担快照与元信息两类对象
type fastTier interface {
	domain.SnapshotTier
	domain.MetaTier
}

// NewTieredSnapshotCache 组装两级缓存
func NewTieredSnapshotCache(fast fastTier, durable domain.SnapshotTier, m *metrics.Metrics) *TieredSnapshotCache {
	return &TieredSnapshotCache{fast: fast, durable: durable, metrics: m}
}

// Get 读取快照：快速层命中直接返回；未命中或出错时回退持久层，
// 命中后回填快速层。两层都未命中返回 (nil, nil)。
// 持久层读故障同样按"无数据"返回，读路径对调用方永远可用，
// 由上层以空快照兜底展示。
func (c *TieredSnapshotCache) Get(ctx context.Context, portfolioID string) (*domain.PortfolioSnapshot, error) {
	snapshot, err := c.fast.GetSnapshot(ctx, portfolioID)
	if err != nil {
		logger.Warn(ctx, "快速层快照读取失败，降级持久层", "portfolio_id", portfolioID, "error", err)
		c.recordLookup("fast", "error")
	} else if snapshot != nil {
		c.recordLookup("fast", "hit")
		return snapshot, nil
	} else {
		c.recordLookup("fast", "miss")
	}

	snapshot, err = c.durable.GetSnapshot(ctx, portfolioID)
	if err != nil {
		logger.Error(ctx, "持久层快照读取失败", "portfolio_id", portfolioID, "error", err)
		c.recordLookup("durable", "error")
		return nil, nil
	}
	if snapshot == nil {
		c.recordLookup("durable", "miss")
		return nil, nil
	}
	c.recordLookup("durable", "hit")

	// 回填失败只记日志，不影响本次读取
	if err := c.fast.SaveSnapshot(ctx, snapshot); err != nil {
		logger.Warn(ctx, "快照回填快速层失败", "portfolio_id", portfolioID, "error", err)
	}
	return snapshot, nil
}

// Put 写入快照：先持久层后快速层。持久层失败向上返回，
// 快速层失败吞掉，后续读取会经持久层回填自愈。
func (c *TieredSnapshotCache) Put(ctx context.Context, snapshot *domain.PortfolioSnapshot) error {
	if err := c.durable.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("持久层快照写入失败: %w", err)
	}
	if err := c.fast.SaveSnapshot(ctx, snapshot); err != nil {
		logger.Warn(ctx, "快速层快照写入失败", "portfolio_id", snapshot.PortfolioID, "error", err)
	}
	return nil
}

// GetMeta 读取组合元信息，仅走快速层，未命中返回 (nil, nil)
func (c *TieredSnapshotCache) GetMeta(ctx context.Context, portfolioID string) (*domain.CachedPortfolioMeta, error) {
	meta, err := c.fast.GetMeta(ctx, portfolioID)
	if err != nil {
		logger.Warn(ctx, "组合元信息读取失败", "portfolio_id", portfolioID, "error", err)
		return nil, nil
	}
	return meta, nil
}

// PutMeta 写入组合元信息，尽力而为
func (c *TieredSnapshotCache) PutMeta(ctx context.Context, meta *domain.CachedPortfolioMeta) {
	if err := c.fast.SaveMeta(ctx, meta); err != nil {
		logger.Warn(ctx, "组合元信息写入失败", "portfolio_id", meta.PortfolioID, "error", err)
	}
}

// InvalidateMeta 失效组合元信息，尽力而为
func (c *TieredSnapshotCache) InvalidateMeta(ctx context.Context, portfolioID string) {
	if err := c.fast.DeleteMeta(ctx, portfolioID); err != nil {
		logger.Warn(ctx, "组合元信息失效失败", "portfolio_id", portfolioID, "error", err)
	}
}

func (c *TieredSnapshotCache) recordLookup(tier, result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(tier, result)
	}
}
