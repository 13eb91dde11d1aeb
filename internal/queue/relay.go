package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"season_pass/internal/logger"
)

// Publisher 事件下游（Kafka）。
type Publisher interface {
	Publish(ctx context.Context, msg OrderPaidMessage) error
}

// Relay 将 Redis Stream 事件异步转发到 Kafka。
// 语义：发布 Kafka 成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb       *rd.Client
	publisher Publisher
	log       *zap.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, publisher Publisher, stream, group, consumer string, log *zap.Logger) *Relay {
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		log:       logger.OrNop(log),
		stream:    stream,
		group:     group,
		consumer:  consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.log.Error("relay ensure group", zap.String("stream", r.stream), zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.poll(ctx, 2*time.Second); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.log.Warn("relay poll", zap.Error(err))
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// poll 先处理本消费者的 pending，再读新消息；返回成功转发（含丢弃）的条数。
// block < 0 表示不阻塞。
func (r *Relay) poll(ctx context.Context, block time.Duration) (int, error) {
	msgs, err := r.readGroup(ctx, "0", -1)
	if err != nil {
		return 0, fmt.Errorf("read pending: %w", err)
	}
	if len(msgs) == 0 {
		msgs, err = r.readGroup(ctx, ">", block)
		if err != nil {
			return 0, fmt.Errorf("read new: %w", err)
		}
	}

	done := 0
	for _, xm := range msgs {
		if err := r.processOne(ctx, xm); err != nil {
			// 发布失败不 ACK，保持顺序，下轮从 pending 重试。
			r.log.Warn("relay publish failed", zap.String("stream_id", xm.ID), zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			return done, nil
		}
		done++
	}
	return done, nil
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	msg, err := parseOrderPaidEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.log.Error("relay drop malformed event", zap.String("stream_id", xm.ID), zap.Error(err))
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, msg); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseOrderPaidEvent(values map[string]interface{}) (OrderPaidMessage, error) {
	var (
		msg OrderPaidMessage
		err error
	)
	if msg.EventID, err = getStreamString(values, "event_id"); err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.PaymentID, err = getStreamString(values, "payment_id"); err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.SKU, err = getStreamString(values, "sku"); err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.OrderID, err = getStreamUint(values, "order_id"); err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.BuyerID, err = getStreamUint(values, "buyer_id"); err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.UserID, err = getStreamUint(values, "user_id"); err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.BattlepassID, err = getStreamUint(values, "battlepass_id"); err != nil {
		return OrderPaidMessage{}, err
	}

	usesStr, err := getStreamString(values, "uses_total")
	if err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.UsesTotal, err = strconv.Atoi(usesStr); err != nil {
		return OrderPaidMessage{}, fmt.Errorf("invalid uses_total %q", usesStr)
	}

	paidStr, err := getStreamString(values, "paid_at")
	if err != nil {
		return OrderPaidMessage{}, err
	}
	if msg.PaidAt, err = time.Parse(time.RFC3339Nano, paidStr); err != nil {
		return OrderPaidMessage{}, fmt.Errorf("invalid paid_at %q", paidStr)
	}

	if err := msg.Validate(); err != nil {
		return OrderPaidMessage{}, err
	}
	return msg, nil
}

func getStreamUint(values map[string]interface{}, key string) (uint, error) {
	s, err := getStreamString(values, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return uint(n), nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
