package job

import (
	"context"
	"sync"
	"time"

	"goldledger/internal/infrastructure/mq"
	"goldledger/internal/model"
	"goldledger/internal/repository"

	"go.uber.org/zap"
)

// OutboxSender 将与余额变更同事务写入的账本事件投递到 Kafka
// 投递失败累计重试次数，超过上限后标记为 FAILED，不再自动重试
type OutboxSender struct {
	store         repository.OutboxStore
	publisher     mq.Publisher
	logger        *zap.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(store repository.OutboxStore, publisher mq.Publisher, maxRetryCount int, logger *zap.Logger) *OutboxSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetryCount <= 0 {
		maxRetryCount = 5
	}
	return &OutboxSender{
		store:         store,
		publisher:     publisher,
		logger:        logger.Named("outbox_sender"),
		stopCh:        make(chan struct{}),
		interval:      100 * time.Millisecond,
		batchSize:     100,
		maxRetryCount: maxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

// Stop 可重复调用
func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// processPendingMessages 投递一批待发送消息，返回成功条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.store.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			s.logger.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
			return false
		}
		s.logger.Debug("消息发送成功",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey))
		return true
	}

	s.logger.Warn("消息发送失败", zap.Int64("id", msg.ID), zap.Error(err))

	if err := s.store.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.store.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			s.logger.Error("消息超过最大重试次数，标记为失败",
				zap.Int64("id", msg.ID),
				zap.String("key", msg.MessageKey))
		}
	}
	return false
}
