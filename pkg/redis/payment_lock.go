package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseLockIfMatch 仅当锁值匹配 token 时才删除，避免误删别人的锁。
const luaReleaseLockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// PaymentLock 按支付单号加短锁，合并网关的重复回调。
type PaymentLock struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewPaymentLock(rdb *rd.Client, ttl time.Duration) *PaymentLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PaymentLock{rdb: rdb, ttl: ttl}
}

// Acquire 成功时返回 token，用于释放；ok=false 表示已有处理中的请求。
func (l *PaymentLock) Acquire(ctx context.Context, paymentID string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, PaymentLockKey(paymentID), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release 安全释放锁。
func (l *PaymentLock) Release(ctx context.Context, paymentID, token string) error {
	_, err := l.rdb.Eval(ctx, luaReleaseLockIfMatch, []string{PaymentLockKey(paymentID)}, token).Int()
	return err
}
