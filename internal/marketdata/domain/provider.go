package domain

import (
	"context"
	"time"
)

// QuoteProvider 上游行情数据源契约。每个实现对应一个供应商，
// 负责把供应商报文归一化为本包的领域模型。
//
// 约定：
//   - 标的无数据返回 ErrSymbolNotFound，而非传输层错误；
//   - 传输层失败返回 *ProviderError，携带可重试分类；
//   - 历史序列按时间升序返回（供应商倒序报文由实现翻转），
//     收盘价缺失的点被丢弃。
type QuoteProvider interface {
	// Name 数据源名称，用于日志与指标
	Name() string
	// FetchQuote 拉取单个标的的实时报价
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
	// FetchSymbolInfo 拉取标的元信息
	FetchSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	// FetchHistory 拉取历史收盘序列
	FetchHistory(ctx context.Context, symbol string, from, to time.Time, granularity Granularity) ([]HistoricalPoint, error)
}
