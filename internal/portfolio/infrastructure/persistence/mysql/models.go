package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
	"gorm.io/gorm"
)

// SnapshotModel 快照持久层行：序列列以 JSON 编码存储
type SnapshotModel struct {
	gorm.Model
	// PortfolioID 组合 ID，一组合一快照
	PortfolioID string `gorm:"column:portfolio_id;type:varchar(32);uniqueIndex;not null"`
	// TotalValue 组合总值
	TotalValue decimal.Decimal `gorm:"column:total_value;type:decimal(20,4);not null"`
	// Holdings 持仓估值明细（JSON）
	Holdings string `gorm:"column:holdings;type:json"`
	// Intraday1D 当日日内序列（JSON）
	Intraday1D string `gorm:"column:intraday_1d;type:json"`
	// Daily30D 近 30 日序列（JSON）
	Daily30D string `gorm:"column:daily_30d;type:json"`
	// Benchmark30D 基准序列（JSON）
	Benchmark30D string `gorm:"column:benchmark_30d;type:json"`
	// RefreshedAt 快照生成时刻
	RefreshedAt time.Time `gorm:"column:refreshed_at;index;not null"`
}

func (SnapshotModel) TableName() string { return "portfolio_snapshots" }

// toSnapshotModel 领域快照转持久层行
func toSnapshotModel(s *domain.PortfolioSnapshot) (*SnapshotModel, error) {
	holdings, err := json.Marshal(s.Holdings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal holdings: %w", err)
	}
	intraday, err := json.Marshal(s.Intraday1D)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intraday series: %w", err)
	}
	daily, err := json.Marshal(s.Daily30D)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal daily series: %w", err)
	}
	benchmark, err := json.Marshal(s.Benchmark30D)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal benchmark series: %w", err)
	}

	return &SnapshotModel{
		PortfolioID:  s.PortfolioID,
		TotalValue:   s.TotalValue,
		Holdings:     string(holdings),
		Intraday1D:   string(intraday),
		Daily30D:     string(daily),
		Benchmark30D: string(benchmark),
		RefreshedAt:  s.UpdatedAt,
	}, nil
}

// toSnapshot 持久层行转领域快照
func toSnapshot(m *SnapshotModel) (*domain.PortfolioSnapshot, error) {
	s := domain.EmptySnapshot(m.PortfolioID)
	s.TotalValue = m.TotalValue
	s.UpdatedAt = m.RefreshedAt

	if m.Holdings != "" {
		if err := json.Unmarshal([]byte(m.Holdings), &s.Holdings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal holdings: %w", err)
		}
	}
	if m.Intraday1D != "" {
		if err := json.Unmarshal([]byte(m.Intraday1D), &s.Intraday1D); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intraday series: %w", err)
		}
	}
	if m.Daily30D != "" {
		if err := json.Unmarshal([]byte(m.Daily30D), &s.Daily30D); err != nil {
			return nil, fmt.Errorf("failed to unmarshal daily series: %w", err)
		}
	}
	if m.Benchmark30D != "" {
		if err := json.Unmarshal([]byte(m.Benchmark30D), &s.Benchmark30D); err != nil {
			return nil, fmt.Errorf("failed to unmarshal benchmark series: %w", err)
		}
	}
	return s, nil
}
