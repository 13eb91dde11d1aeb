package queue

import (
	"fmt"
	"time"
)

// OrderPaidMessage 订单履约完成事件：Outbox 入流、Relay 转 Kafka、Consumer 发通知。
type OrderPaidMessage struct {
	EventID      string    `json:"event_id"`
	OrderID      uint      `json:"order_id"`
	BuyerID      uint      `json:"buyer_id"`
	UserID       uint      `json:"user_id"` // 季票归属人
	PaymentID    string    `json:"payment_id"`
	BattlepassID uint      `json:"battlepass_id"`
	UsesTotal    int       `json:"uses_total"`
	SKU          string    `json:"sku"`
	PaidAt       time.Time `json:"paid_at"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderPaidMessage) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if m.BattlepassID == 0 {
		return fmt.Errorf("battlepass_id is required")
	}
	if m.UsesTotal <= 0 {
		return fmt.Errorf("uses_total must be > 0")
	}
	return nil
}

// Gifted 是否为代购订单。
func (m OrderPaidMessage) Gifted() bool {
	return m.BuyerID != 0 && m.BuyerID != m.UserID
}
