// Package mysql 快照与组合数据的 MySQL 持久层实现
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository 快照持久层仓储。持久层是崩溃恢复的事实来源，
// 写失败必须上抛。
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository 创建快照持久层仓储
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// GetSnapshot 按组合 ID 读取快照，不存在时返回 (nil, nil)
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, portfolioID string) (*domain.PortfolioSnapshot, error) {
	var model SnapshotModel
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toSnapshot(&model)
}

// SaveSnapshot 整行 upsert：同一组合的快照被整体替换，不存在部分更新
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *domain.PortfolioSnapshot) error {
	model, err := toSnapshotModel(snapshot)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "portfolio_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_value", "holdings", "intraday_1d", "daily_30d", "benchmark_30d", "refreshed_at", "updated_at",
		}),
	}).Create(model).Error
}

// PortfolioRepository 组合与持仓读取仓储（组合 CRUD 归外部协作方，此处只读）
type PortfolioRepository struct {
	db *gorm.DB
}

// NewPortfolioRepository 创建组合读取仓储
func NewPortfolioRepository(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// ListPortfolios 列出全部组合
func (r *PortfolioRepository) ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	var portfolios []*domain.Portfolio
	err := r.db.WithContext(ctx).Order("portfolio_id").Find(&portfolios).Error
	return portfolios, err
}

// GetPortfolio 按 ID 读取组合，不存在时返回 (nil, nil)
func (r *PortfolioRepository) GetPortfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	var portfolio domain.Portfolio
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		First(&portfolio).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// ListHoldings 列出组合持仓，顺序稳定
func (r *PortfolioRepository) ListHoldings(ctx context.Context, portfolioID string) ([]*domain.Holding, error) {
	var holdings []*domain.Holding
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("symbol").
		Find(&holdings).Error
	return holdings, err
}

// ListAllHoldings 列出全部持仓，刷新周期据此收集去重标的
func (r *PortfolioRepository) ListAllHoldings(ctx context.Context) ([]*domain.Holding, error) {
	var holdings []*domain.Holding
	err := r.db.WithContext(ctx).Order("portfolio_id, symbol").Find(&holdings).Error
	return holdings, err
}
