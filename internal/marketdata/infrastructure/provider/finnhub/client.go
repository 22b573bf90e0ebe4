// Package finnhub Finnhub 数据源适配器，把供应商报文归一化为领域模型
package finnhub

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
)

const providerName = "finnhub"

// Config 适配器配置，构造时显式注入，适配器内部不读取任何全局状态
type Config struct {
	// BaseURL API 基础地址
	BaseURL string
	// APIKey API 密钥
	APIKey string
	// Timeout 单次请求超时
	Timeout time.Duration
}

// Client Finnhub 适配器
type Client struct {
	http   *resty.Client
	apiKey string
}

// New 创建 Finnhub 适配器
func New(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		apiKey: cfg.APIKey,
	}
}

// Name 数据源名称
func (c *Client) Name() string {
	return providerName
}

// quoteResponse /quote 报文
type quoteResponse struct {
	Current       float64 `json:"c"`
	PreviousClose float64 `json:"pc"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	Timestamp     int64   `json:"t"`
}

// FetchQuote 拉取实时报价。Finnhub 对未知标的返回全零报文，视为标的缺失。
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	var out quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  c.apiKey,
		}).
		SetResult(&out).
		Get("/quote")
	if err := c.classify(resp, err); err != nil {
		return nil, err
	}

	if out.Current == 0 && out.PreviousClose == 0 {
		return nil, domain.ErrSymbolNotFound
	}

	return domain.NewQuote(
		decimal.NewFromFloat(out.Current),
		decimal.NewFromFloat(out.PreviousClose),
	), nil
}

// profileResponse /stock/profile2 报文
type profileResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
	Type   string `json:"type"`
}

// FetchSymbolInfo 拉取标的元信息。空报文视为标的缺失。
func (c *Client) FetchSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	var out profileResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  c.apiKey,
		}).
		SetResult(&out).
		Get("/stock/profile2")
	if err := c.classify(resp, err); err != nil {
		return nil, err
	}

	if out.Name == "" && out.Ticker == "" {
		return nil, domain.ErrSymbolNotFound
	}

	return &domain.SymbolInfo{
		DisplayName: out.Name,
		Kind:        mapInstrumentKind(out.Type),
	}, nil
}

// candleResponse /stock/candle 报文
type candleResponse struct {
	Closes     []float64 `json:"c"`
	Timestamps []int64   `json:"t"`
	Status     string    `json:"s"`
}

// FetchHistory 拉取历史收盘序列，升序返回，丢弃无效收盘点
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time, granularity domain.Granularity) ([]domain.HistoricalPoint, error) {
	resolution := "D"
	if granularity == domain.GranularityIntraday {
		resolution = "5"
	}

	var out candleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":     symbol,
			"resolution": resolution,
			"from":       fmt.Sprintf("%d", from.Unix()),
			"to":         fmt.Sprintf("%d", to.Unix()),
			"token":      c.apiKey,
		}).
		SetResult(&out).
		Get("/stock/candle")
	if err := c.classify(resp, err); err != nil {
		return nil, err
	}

	if out.Status == "no_data" {
		return nil, nil
	}
	if out.Status != "ok" {
		return nil, domain.NewTerminalError(providerName, resp.StatusCode(),
			fmt.Errorf("%w: unexpected candle status %q", domain.ErrMalformedResponse, out.Status))
	}
	if len(out.Closes) != len(out.Timestamps) {
		return nil, domain.NewTerminalError(providerName, resp.StatusCode(),
			fmt.Errorf("%w: candle arrays length mismatch", domain.ErrMalformedResponse))
	}

	points := make([]domain.HistoricalPoint, 0, len(out.Closes))
	for i, ts := range out.Timestamps {
		if out.Closes[i] <= 0 {
			continue
		}
		points = append(points, domain.HistoricalPoint{
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     decimal.NewFromFloat(out.Closes[i]),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

// classify 把传输层结果映射到领域错误分类。网络层失败（含超时）可重试；
// HTTP 429 与 5xx 可重试，其余 4xx 终态。
func (c *Client) classify(resp *resty.Response, err error) error {
	if err != nil {
		return domain.NewRetryableError(providerName, 0, err)
	}
	if resp.IsError() {
		return domain.ClassifyHTTPStatus(providerName, resp.StatusCode(),
			fmt.Errorf("unexpected response: %s", resp.Status()))
	}
	return nil
}

// mapInstrumentKind 把 Finnhub 的标的类型映射到领域枚举
func mapInstrumentKind(finnhubType string) domain.InstrumentKind {
	switch {
	case strings.EqualFold(finnhubType, "Common Stock"):
		return domain.KindCommonStock
	case strings.EqualFold(finnhubType, "ETP"), strings.EqualFold(finnhubType, "ETF"):
		return domain.KindETF
	case strings.EqualFold(finnhubType, "Open-End Fund"), strings.EqualFold(finnhubType, "Mutual Fund"):
		return domain.KindMutualFund
	case strings.EqualFold(finnhubType, "Crypto"):
		return domain.KindCrypto
	case strings.EqualFold(finnhubType, "Money Market"):
		return domain.KindMoneyMarket
	default:
		return domain.KindOther
	}
}
