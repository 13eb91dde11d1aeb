package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"season_pass/internal/database"
	"season_pass/internal/logger"
	"season_pass/internal/model"
)

const NotificationBattlepassIssued = "battlepass_issued"

// Consumer 消费履约事件，为季票归属人写站内通知。
type Consumer struct {
	r   *kafka.Reader
	db  *gorm.DB
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB, log *zap.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db:  db,
		log: logger.OrNop(log),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := c.handle(ctx, m); err != nil {
			c.log.Error("consumer handle",
				zap.String("key", string(m.Key)),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
	}
}

// handle 幂等：重复投递撞 event_id 唯一索引，直接当作成功。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var msg OrderPaidMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	n := notificationFor(msg)
	err := c.db.WithContext(ctx).Create(&n).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			c.log.Debug("duplicate order event", zap.String("event_id", msg.EventID))
			return nil
		}
		return fmt.Errorf("create notification: %w", err)
	}
	c.log.Info("battlepass notification created",
		zap.Uint("user_id", msg.UserID),
		zap.Uint("order_id", msg.OrderID),
		zap.String("event_id", msg.EventID))
	return nil
}

func notificationFor(msg OrderPaidMessage) model.Notification {
	body := fmt.Sprintf("Order #%d is paid. Battlepass #%d with %d uses is ready.", msg.OrderID, msg.BattlepassID, msg.UsesTotal)
	if msg.Gifted() {
		body = fmt.Sprintf("You received a gift battlepass #%d with %d uses (order #%d).", msg.BattlepassID, msg.UsesTotal, msg.OrderID)
	}
	return model.Notification{
		UserID:  msg.UserID,
		Kind:    NotificationBattlepassIssued,
		Title:   "Battlepass " + msg.SKU,
		Body:    body,
		EventID: msg.EventID,
	}
}
