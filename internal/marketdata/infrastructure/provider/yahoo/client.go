// Package yahoo Yahoo Finance chart API 适配器，作为免密钥的回退数据源
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
)

const providerName = "yahoo"

// Config 适配器配置
type Config struct {
	// BaseURL API 基础地址
	BaseURL string
	// Timeout 单次请求超时
	Timeout time.Duration
}

// Client Yahoo 适配器
type Client struct {
	http *resty.Client
}

// New 创建 Yahoo 适配器
func New(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; portfoliopulse/1.0)")

	return &Client{http: httpClient}
}

// Name 数据源名称
func (c *Client) Name() string {
	return providerName
}

// chartResponse /v8/finance/chart 报文
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		InstrumentType     string  `json:"instrumentType"`
		LongName           string  `json:"longName"`
		ShortName          string  `json:"shortName"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			// Close 收盘价数组，交易暂停的点位为 null
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// FetchQuote 拉取实时报价，取 chart meta 中的现价与昨收
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	result, err := c.fetchChart(ctx, symbol, map[string]string{
		"interval": "1d",
		"range":    "1d",
	})
	if err != nil {
		return nil, err
	}

	meta := result.Meta
	if meta.RegularMarketPrice == 0 && meta.ChartPreviousClose == 0 {
		return nil, domain.ErrSymbolNotFound
	}

	return domain.NewQuote(
		decimal.NewFromFloat(meta.RegularMarketPrice),
		decimal.NewFromFloat(meta.ChartPreviousClose),
	), nil
}

// FetchSymbolInfo 拉取标的元信息，来源于 chart meta
func (c *Client) FetchSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	result, err := c.fetchChart(ctx, symbol, map[string]string{
		"interval": "1d",
		"range":    "1d",
	})
	if err != nil {
		return nil, err
	}

	name := result.Meta.LongName
	if name == "" {
		name = result.Meta.ShortName
	}
	if name == "" {
		name = symbol
	}

	return &domain.SymbolInfo{
		DisplayName: name,
		Kind:        mapInstrumentKind(result.Meta.InstrumentType),
	}, nil
}

// FetchHistory 拉取历史收盘序列，升序返回，null 收盘点被丢弃
func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time, granularity domain.Granularity) ([]domain.HistoricalPoint, error) {
	interval := "1d"
	if granularity == domain.GranularityIntraday {
		interval = "5m"
	}

	result, err := c.fetchChart(ctx, symbol, map[string]string{
		"interval": interval,
		"period1":  fmt.Sprintf("%d", from.Unix()),
		"period2":  fmt.Sprintf("%d", to.Unix()),
	})
	if err != nil {
		return nil, err
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return nil, domain.NewTerminalError(providerName, http.StatusOK,
			fmt.Errorf("%w: close/timestamp arrays length mismatch", domain.ErrMalformedResponse))
	}

	points := make([]domain.HistoricalPoint, 0, len(closes))
	for i, ts := range result.Timestamp {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		points = append(points, domain.HistoricalPoint{
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     decimal.NewFromFloat(*closes[i]),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

// fetchChart 请求 chart 端点并做传输层分类与报文校验
func (c *Client) fetchChart(ctx context.Context, symbol string, params map[string]string) (*chartResult, error) {
	var out chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		SetError(&out).
		Get("/v8/finance/chart/" + symbol)
	if err != nil {
		return nil, domain.NewRetryableError(providerName, 0, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, domain.ErrSymbolNotFound
	}
	if resp.IsError() {
		return nil, domain.ClassifyHTTPStatus(providerName, resp.StatusCode(),
			fmt.Errorf("unexpected response: %s", resp.Status()))
	}

	if out.Chart.Error != nil {
		if out.Chart.Error.Code == "Not Found" {
			return nil, domain.ErrSymbolNotFound
		}
		return nil, domain.NewTerminalError(providerName, resp.StatusCode(),
			fmt.Errorf("%w: %s", domain.ErrMalformedResponse, out.Chart.Error.Description))
	}
	if len(out.Chart.Result) == 0 {
		return nil, domain.ErrSymbolNotFound
	}
	return &out.Chart.Result[0], nil
}

// mapInstrumentKind 把 Yahoo 的 instrumentType 映射到领域枚举
func mapInstrumentKind(instrumentType string) domain.InstrumentKind {
	switch instrumentType {
	case "EQUITY":
		return domain.KindCommonStock
	case "ETF":
		return domain.KindETF
	case "MUTUALFUND":
		return domain.KindMutualFund
	case "CRYPTOCURRENCY":
		return domain.KindCrypto
	case "MONEYMARKET":
		return domain.KindMoneyMarket
	default:
		return domain.KindOther
	}
}
