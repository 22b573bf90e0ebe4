// Package domain 行情数据的领域模型：报价、标的信息、历史序列与数据源契约
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote 归一化报价：现价、昨收与派生涨跌幅
type Quote struct {
	// CurrentPrice 现价
	CurrentPrice decimal.Decimal `json:"current_price"`
	// PreviousClose 昨收价
	PreviousClose decimal.Decimal `json:"previous_close"`
	// ChangePercent 涨跌幅（百分比），由现价与昨收派生
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// NewQuote 构造报价并派生涨跌幅。昨收为零时涨跌幅为零。
func NewQuote(currentPrice, previousClose decimal.Decimal) *Quote {
	changePercent := decimal.Zero
	if previousClose.IsPositive() {
		changePercent = currentPrice.Sub(previousClose).
			Div(previousClose).
			Mul(decimal.NewFromInt(100))
	}
	return &Quote{
		CurrentPrice:  currentPrice,
		PreviousClose: previousClose,
		ChangePercent: changePercent,
	}
}

// InstrumentKind 标的类型
type InstrumentKind string

const (
	KindCommonStock InstrumentKind = "COMMON_STOCK"
	KindETF         InstrumentKind = "ETF"
	KindMutualFund  InstrumentKind = "MUTUAL_FUND"
	KindCrypto      InstrumentKind = "CRYPTO"
	KindMoneyMarket InstrumentKind = "MONEY_MARKET"
	KindOther       InstrumentKind = "OTHER"
)

// SymbolInfo 标的元信息，低频变化，可长期缓存
type SymbolInfo struct {
	// DisplayName 展示名称
	DisplayName string `json:"display_name"`
	// Kind 标的类型
	Kind InstrumentKind `json:"kind"`
}

// HistoricalPoint 历史收盘点
type HistoricalPoint struct {
	// Timestamp 时间戳
	Timestamp time.Time `json:"timestamp"`
	// Close 收盘价
	Close decimal.Decimal `json:"close"`
}

// Granularity 历史数据粒度
type Granularity string

const (
	// GranularityDaily 日线
	GranularityDaily Granularity = "daily"
	// GranularityIntraday 日内（5 分钟）
	GranularityIntraday Granularity = "intraday"
)
