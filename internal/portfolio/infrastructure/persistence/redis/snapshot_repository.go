// Package redis 快照与组合元信息的 Redis 快速层实现
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
	"github.com/wyfcoding/portfoliopulse/pkg/cache"
)

// 键命名空间：按用途区分
const (
	snapshotKeyPrefix  = "snapshot:"
	portfolioKeyPrefix = "portfolio:"
	priceKeyPrefix     = "price:"
)

// TTL 仅作驱逐兜底；新鲜度由读方按 updated_at 派生，与 TTL 无关
const (
	snapshotTTL = time.Hour
	metaTTL     = 24 * time.Hour
	priceTTL    = 15 * time.Minute
)

// SnapshotRepository 快照快速层仓储。快速层只是加速器，任何故障
// 都由上层吞掉降级，绝不充当事实来源。
type SnapshotRepository struct {
	cache *cache.RedisCache
}

// NewSnapshotRepository 创建快照快速层仓储
func NewSnapshotRepository(c *cache.RedisCache) *SnapshotRepository {
	return &SnapshotRepository{cache: c}
}

// GetSnapshot 读取快照，未命中返回 (nil, nil)
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, portfolioID string) (*domain.PortfolioSnapshot, error) {
	var snapshot domain.PortfolioSnapshot
	found, err := r.cache.GetJSON(ctx, snapshotKeyPrefix+portfolioID, &snapshot)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &snapshot, nil
}

// SaveSnapshot 写入快照
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *domain.PortfolioSnapshot) error {
	return r.cache.SetJSON(ctx, snapshotKeyPrefix+snapshot.PortfolioID, snapshot, snapshotTTL)
}

// GetMeta 读取组合元信息，未命中返回 (nil, nil)
func (r *SnapshotRepository) GetMeta(ctx context.Context, portfolioID string) (*domain.CachedPortfolioMeta, error) {
	var meta domain.CachedPortfolioMeta
	found, err := r.cache.GetJSON(ctx, portfolioKeyPrefix+portfolioID, &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &meta, nil
}

// SaveMeta 写入组合元信息
func (r *SnapshotRepository) SaveMeta(ctx context.Context, meta *domain.CachedPortfolioMeta) error {
	return r.cache.SetJSON(ctx, portfolioKeyPrefix+meta.PortfolioID, meta, metaTTL)
}

// DeleteMeta 失效组合元信息
func (r *SnapshotRepository) DeleteMeta(ctx context.Context, portfolioID string) error {
	return r.cache.Delete(ctx, portfolioKeyPrefix+portfolioID)
}

// SavePrices 通过 pipeline 批量预热单标的价格
func (r *SnapshotRepository) SavePrices(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}
	entries := make(map[string]any, len(prices))
	for symbol, price := range prices {
		entries[priceKeyPrefix+symbol] = price
	}
	return r.cache.PipelineSetJSON(ctx, entries, priceTTL)
}

// GetPrices 通过 MGET 批量读取单标的价格，缺失的标的不出现在结果中
func (r *SnapshotRepository) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = priceKeyPrefix + symbol
	}
	vals, err := r.cache.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok || raw == "" {
			continue
		}
		var price decimal.Decimal
		if err := json.Unmarshal([]byte(raw), &price); err != nil {
			continue
		}
		prices[symbols[i]] = price
	}
	return prices, nil
}
