// Package fetcher 容错行情拉取器：有序回退的多数据源之上叠加指数退避重试与批量并发
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
	"github.com/wyfcoding/portfoliopulse/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// RetryPolicy 单数据源重试策略。退避按 InitialBackoff 逐次翻倍（1s、2s、4s）。
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（含首次）
	MaxAttempts int
	// InitialBackoff 首次重试前的退避时长
	InitialBackoff time.Duration
}

// DefaultRetryPolicy 默认重试策略
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: time.Second,
}

// Fetcher 容错行情拉取器。数据源顺序固定：依次尝试，前一个标的缺失或
// 重试耗尽时落到下一个；成功即返回，即使结果可疑也不再回退（结果校验
// 是适配器的职责）。本组件不做任何缓存。
type Fetcher struct {
	providers   []domain.QuoteProvider
	policy      RetryPolicy
	concurrency int
	metrics     *metrics.Metrics

	// sleep 可注入，测试中替换以避免真实退避等待
	sleep func(ctx context.Context, d time.Duration) error
}

// Option Fetcher 可选配置
type Option func(*Fetcher)

// WithMetrics 注入指标收集
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithSleep 替换退避等待实现（测试用）
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New 创建拉取器。providers 的声明顺序即回退顺序。
func New(providers []domain.QuoteProvider, policy RetryPolicy, concurrency int, opts ...Option) *Fetcher {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	f := &Fetcher{
		providers:   providers,
		policy:      policy,
		concurrency: concurrency,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetQuote 拉取单个标的的报价。所有数据源耗尽或均无数据时返回 (nil, nil)，
// 缺失是正常状态而非错误。
func (f *Fetcher) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	var quote *domain.Quote
	err := f.withFallback(ctx, symbol, "quote", func(ctx context.Context, p domain.QuoteProvider) error {
		q, err := p.FetchQuote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// GetQuotes 批量拉取报价，按标的并发、有界扇出。单个标的失败不影响其余，
// 返回的映射仅包含成功解析的标的。
func (f *Fetcher) GetQuotes(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
	results := make(map[string]*domain.Quote, len(symbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for _, symbol := range symbols {
		g.Go(func() error {
			quote, err := f.GetQuote(ctx, symbol)
			if err != nil {
				// 仅 context 取消会走到这里；中断整个批次
				return err
			}
			if quote == nil {
				return nil
			}
			mu.Lock()
			results[symbol] = quote
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetSymbolInfo 拉取标的元信息，回退与重试规则同 GetQuote
func (f *Fetcher) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	var info *domain.SymbolInfo
	err := f.withFallback(ctx, symbol, "symbol_info", func(ctx context.Context, p domain.QuoteProvider) error {
		si, err := p.FetchSymbolInfo(ctx, symbol)
		if err != nil {
			return err
		}
		info = si
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetHistory 拉取历史收盘序列。所有数据源耗尽时返回空序列。
func (f *Fetcher) GetHistory(ctx context.Context, symbol string, from, to time.Time, granularity domain.Granularity) ([]domain.HistoricalPoint, error) {
	var points []domain.HistoricalPoint
	err := f.withFallback(ctx, symbol, "history", func(ctx context.Context, p domain.QuoteProvider) error {
		pts, err := p.FetchHistory(ctx, symbol, from, to, granularity)
		if err != nil {
			return err
		}
		points = pts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// withFallback 按固定顺序遍历数据源执行 fn。标的缺失与终态失败立即落到
// 下一个数据源；可重试失败先按策略耗尽重试再回退。所有数据源耗尽时返回
// nil（调用方以缺失处理），context 取消原样上抛。
func (f *Fetcher) withFallback(ctx context.Context, symbol, operation string, fn func(context.Context, domain.QuoteProvider) error) error {
	for _, p := range f.providers {
		err := f.runWithRetry(ctx, p, operation, fn)
		if err == nil {
			f.recordOutcome(p.Name(), operation, "success")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if domain.IsNotFound(err) {
			f.recordOutcome(p.Name(), operation, "not_found")
			logger.Debug(ctx, "symbol not found on provider, falling through",
				"provider", p.Name(), "symbol", symbol, "operation", operation)
			continue
		}
		f.recordOutcome(p.Name(), operation, "error")
		logger.Warn(ctx, "provider failed, falling through",
			"provider", p.Name(), "symbol", symbol, "operation", operation, "error", err)
	}
	return nil
}

// runWithRetry 对单个数据源执行 fn，可重试失败按指数退避重试。
// 显式有界循环，尝试次数与退避序列可观测，不用递归。
func (f *Fetcher) runWithRetry(ctx context.Context, p domain.QuoteProvider, operation string, fn func(context.Context, domain.QuoteProvider) error) error {
	backoff := f.policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		start := time.Now()
		err := fn(ctx, p)
		f.recordDuration(p.Name(), operation, time.Since(start))
		if err == nil {
			return nil
		}
		lastErr = err

		// 终态失败（含标的缺失）不消耗剩余尝试次数
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt == f.policy.MaxAttempts {
			break
		}

		f.recordRetry(p.Name())
		logger.Debug(ctx, "retrying provider request",
			"provider", p.Name(), "operation", operation, "attempt", attempt, "backoff", backoff, "error", err)
		if err := f.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	return lastErr
}

func (f *Fetcher) recordOutcome(provider, operation, outcome string) {
	if f.metrics != nil {
		f.metrics.ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	}
}

func (f *Fetcher) recordDuration(provider, operation string, d time.Duration) {
	if f.metrics != nil {
		f.metrics.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
	}
}

func (f *Fetcher) recordRetry(provider string) {
	if f.metrics != nil {
		f.metrics.ProviderRetriesTotal.WithLabelValues(provider).Inc()
	}
}

// sleepContext 可被 context 取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
