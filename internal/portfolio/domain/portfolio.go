package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Portfolio 组合实体（外部关系库中的组合记录，本核心只读）
type Portfolio struct {
	gorm.Model
	// PortfolioID 组合 ID
	PortfolioID string `gorm:"column:portfolio_id;type:varchar(32);uniqueIndex;not null" json:"portfolio_id"`
	// Name 组合名称
	Name string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	// IsPrivate 是否私有
	IsPrivate bool `gorm:"column:is_private;not null;default:false" json:"is_private"`
	// Visibility 可见性
	Visibility string `gorm:"column:visibility;type:varchar(20);not null;default:'public'" json:"visibility"`
}

// Holding 持仓实体（外部关系库中的持仓记录，本核心只读）
type Holding struct {
	gorm.Model
	// PortfolioID 所属组合 ID
	PortfolioID string `gorm:"column:portfolio_id;type:varchar(32);index;not null" json:"portfolio_id"`
	// Symbol 标的代码
	Symbol string `gorm:"column:symbol;type:varchar(20);index;not null" json:"symbol"`
	// Quantity 持仓数量
	Quantity decimal.Decimal `gorm:"column:quantity;type:decimal(20,8);not null" json:"quantity"`
	// CostBasis 持仓成本
	CostBasis decimal.Decimal `gorm:"column:cost_basis;type:decimal(20,4);not null;default:0" json:"cost_basis"`
}

func (Portfolio) TableName() string { return "portfolios" }
func (Holding) TableName() string   { return "holdings" }

// Meta 返回组合元信息的非敏感投影
func (p *Portfolio) Meta() *CachedPortfolioMeta {
	return &CachedPortfolioMeta{
		PortfolioID: p.PortfolioID,
		DisplayName: p.Name,
		CreatedAt:   p.CreatedAt,
		IsPrivate:   p.IsPrivate,
		Visibility:  p.Visibility,
	}
}
