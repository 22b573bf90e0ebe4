// Package metrics 提供 Prometheus helper，覆盖 HTTP、数据源、缓存分层与刷新周期指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据源请求计数（按数据源与结果分类）
	ProviderRequestsTotal *prometheus.CounterVec
	// 数据源请求耗时
	ProviderRequestDuration *prometheus.HistogramVec
	// 数据源重试计数
	ProviderRetriesTotal *prometheus.CounterVec

	// 缓存分层命中计数（tier: redis/mysql, result: hit/miss/error）
	CacheTierTotal *prometheus.CounterVec

	// 快照刷新周期计数
	RefreshCyclesTotal *prometheus.CounterVec
	// 快照刷新耗时
	RefreshDuration prometheus.Histogram
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "provider_requests_total",
			Help:      "Total upstream provider requests",
		}, []string{"provider", "operation", "outcome"}),
		ProviderRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		ProviderRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "provider_retries_total",
			Help:      "Total retries against upstream providers",
		}, []string{"provider"}),

		CacheTierTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "cache_tier_total",
			Help:      "Cache tier lookups by tier and result",
		}, []string{"tier", "result"}),

		RefreshCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "refresh_cycles_total",
			Help:      "Snapshot refresh cycles by outcome",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: serviceName,
			Name:      "refresh_duration_seconds",
			Help:      "Snapshot refresh cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.ProviderRetriesTotal,
		m.CacheTierTotal,
		m.RefreshCyclesTotal,
		m.RefreshDuration,
	}

	for _, collector := range collectors {
		if err := prometheus.DefaultRegisterer.Register(collector); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// RecordProviderRequest 记录一次数据源请求
func (m *Metrics) RecordProviderRequest(provider, operation, outcome string, seconds float64) {
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(seconds)
}

// RecordCacheLookup 记录一次缓存分层访问
func (m *Metrics) RecordCacheLookup(tier, result string) {
	m.CacheTierTotal.WithLabelValues(tier, result).Inc()
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()
}
