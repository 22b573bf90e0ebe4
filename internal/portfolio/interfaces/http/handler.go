// Package http 组合快照与行情的 HTTP 接口层
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	mddomain "github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/application"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
	"github.com/wyfcoding/portfoliopulse/pkg/mq"
)

// RefreshEvent 刷新触发事件。PortfolioID 为空表示全量刷新。
type RefreshEvent struct {
	PortfolioID string `json:"portfolio_id"`
}

// Handler 组合快照 HTTP 处理器
type Handler struct {
	query        *application.SnapshotQueryService
	snapshots    *application.SnapshotService
	fetcher      application.MarketDataFetcher
	producer     *mq.KafkaProducer
	refreshTopic string
}

// NewHandler 创建 HTTP 处理器。producer 为 nil 时手动刷新走同步路径。
func NewHandler(
	query *application.SnapshotQueryService,
	snapshots *application.SnapshotService,
	fetcher application.MarketDataFetcher,
	producer *mq.KafkaProducer,
	refreshTopic string,
) *Handler {
	return &Handler{
		query:        query,
		snapshots:    snapshots,
		fetcher:      fetcher,
		producer:     producer,
		refreshTopic: refreshTopic,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		portfolios := v1.Group("/portfolios")
		{
			portfolios.GET("/:id/snapshot", h.GetSnapshot)
			portfolios.GET("/:id/history", h.GetHistory)
			portfolios.POST("/:id/refresh", h.TriggerRefresh)
		}
		market := v1.Group("/market")
		{
			market.GET("/session", h.GetSession)
			market.GET("/quote", h.GetQuote)
		}
	}
}

// GetSnapshot 读取组合快照。快照尚未生成时返回空快照，不报错。
func (h *Handler) GetSnapshot(c *gin.Context) {
	dto, err := h.query.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.Error(c.Request.Context(), "快照查询失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot query failed"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// GetHistory 读取组合历史序列，granularity 取 daily 或 intraday
func (h *Handler) GetHistory(c *gin.Context) {
	granularity := mddomain.Granularity(c.DefaultQuery("granularity", string(mddomain.GranularityDaily)))
	if granularity != mddomain.GranularityDaily && granularity != mddomain.GranularityIntraday {
		c.JSON(http.StatusBadRequest, gin.H{"error": "granularity must be daily or intraday"})
		return
	}

	dto, err := h.query.GetHistory(c.Request.Context(), c.Param("id"), granularity)
	if err != nil {
		logger.Error(c.Request.Context(), "历史序列查询失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// GetSession 返回当前交易时段与交易日起点
func (h *Handler) GetSession(c *gin.Context) {
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"phase":                mddomain.Phase(now),
		"start_of_trading_day": mddomain.StartOfTradingDay(now),
	})
}

// GetQuote 透传单标的实时报价，标的不存在返回 404
func (h *Handler) GetQuote(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	quote, err := h.fetcher.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		logger.Error(c.Request.Context(), "报价获取失败", "symbol", symbol, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "quote fetch failed"})
		return
	}
	if quote == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "quote": quote})
}

// TriggerRefresh 手动触发组合刷新。配置了生产者时投递事件异步处理，
// 否则同步刷新。
func (h *Handler) TriggerRefresh(c *gin.Context) {
	portfolioID := c.Param("id")
	ctx := c.Request.Context()

	if h.producer != nil {
		event := RefreshEvent{PortfolioID: portfolioID}
		if err := h.producer.SendMessage(ctx, h.refreshTopic, portfolioID, event); err != nil {
			logger.Error(ctx, "刷新事件投递失败", "portfolio_id", portfolioID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh event publish failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
		return
	}

	if err := h.snapshots.Refresh(ctx, portfolioID); err != nil {
		logger.Error(ctx, "组合刷新失败", "portfolio_id", portfolioID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}
