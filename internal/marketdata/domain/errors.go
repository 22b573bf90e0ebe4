package domain

import (
	"errors"
	"fmt"
)

// ErrSymbolNotFound 数据源没有该标的的数据。终态，不重试，调用方以显式缺失处理。
var ErrSymbolNotFound = errors.New("symbol not found")

// ErrMalformedResponse 数据源返回了无法解析的报文。终态，对调用方等同于无数据。
var ErrMalformedResponse = errors.New("malformed provider response")

// ProviderError 上游数据源传输层失败，携带可重试分类。
// 分类规则：HTTP 429、>=500 与网络超时可重试；其余 4xx 与解码失败为终态。
type ProviderError struct {
	// Provider 数据源名称
	Provider string
	// StatusCode HTTP 状态码，网络层失败时为 0
	StatusCode int
	// Retryable 是否值得重试
	Retryable bool
	// Err 底层错误
	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewRetryableError 构造可重试的数据源错误
func NewRetryableError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Retryable: true, Err: err}
}

// NewTerminalError 构造终态的数据源错误
func NewTerminalError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Retryable: false, Err: err}
}

// ClassifyHTTPStatus 按状态码构造数据源错误。429 与 5xx 可重试，其余 4xx 终态。
func ClassifyHTTPStatus(provider string, statusCode int, err error) *ProviderError {
	if statusCode == 429 || statusCode >= 500 {
		return NewRetryableError(provider, statusCode, err)
	}
	return NewTerminalError(provider, statusCode, err)
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsNotFound 判断错误是否为标的缺失
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSymbolNotFound)
}
