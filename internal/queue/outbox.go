package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把履约事件写入 Redis Stream，由 Relay 异步转发 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream, maxLen: 100000}
}

// Append 写入一条 OrderPaidMessage。
func (o *Outbox) Append(ctx context.Context, msg OrderPaidMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid order event: %w", err)
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":      msg.EventID,
			"order_id":      strconv.FormatUint(uint64(msg.OrderID), 10),
			"buyer_id":      strconv.FormatUint(uint64(msg.BuyerID), 10),
			"user_id":       strconv.FormatUint(uint64(msg.UserID), 10),
			"payment_id":    msg.PaymentID,
			"battlepass_id": strconv.FormatUint(uint64(msg.BattlepassID), 10),
			"uses_total":    strconv.Itoa(msg.UsesTotal),
			"sku":           msg.SKU,
			"paid_at":       msg.PaidAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}
