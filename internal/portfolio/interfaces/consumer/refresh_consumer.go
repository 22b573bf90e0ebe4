// Package consumer 刷新触发事件的 Kafka 消费端
package consumer

import (
	"context"
	"errors"

	"github.com/wyfcoding/portfoliopulse/internal/portfolio/application"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
	"github.com/wyfcoding/portfoliopulse/pkg/mq"
)

// refreshEvent 刷新触发事件载荷。PortfolioID 为空表示全量刷新。
type refreshEvent struct {
	PortfolioID string `json:"portfolio_id"`
}

// RefreshConsumer 消费刷新事件并调用快照服务。刷新是幂等的，
// 至少一次投递语义即可，失败消息不重投。
type RefreshConsumer struct {
	consumer  *mq.KafkaConsumer
	snapshots *application.SnapshotService
}

// NewRefreshConsumer 创建刷新事件消费者
func NewRefreshConsumer(consumer *mq.KafkaConsumer, snapshots *application.SnapshotService) *RefreshConsumer {
	return &RefreshConsumer{consumer: consumer, snapshots: snapshots}
}

// Run 持续消费直到 ctx 取消
func (c *RefreshConsumer) Run(ctx context.Context) error {
	logger.Info(ctx, "刷新事件消费启动")
	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				logger.Info(ctx, "刷新事件消费退出")
				return nil
			}
			logger.Error(ctx, "刷新事件读取失败", "error", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *RefreshConsumer) handle(ctx context.Context, msg *mq.Message) {
	var event refreshEvent
	if err := msg.UnmarshalPayload(&event); err != nil {
		logger.Warn(ctx, "刷新事件解析失败，丢弃", "offset", msg.Offset, "error", err)
		return
	}

	if event.PortfolioID == "" {
		if err := c.snapshots.RefreshAll(ctx); err != nil {
			logger.Error(ctx, "全量刷新失败", "error", err)
		}
		return
	}
	if err := c.snapshots.Refresh(ctx, event.PortfolioID); err != nil {
		logger.Error(ctx, "组合刷新失败", "portfolio_id", event.PortfolioID, "error", err)
	}
}
