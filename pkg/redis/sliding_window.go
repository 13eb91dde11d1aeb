package redis

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaSlidingWindow：滑动窗口限流（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间(ms)，ARGV[2]=窗口开始(ms)，ARGV[3]=窗口毫秒，ARGV[4]=member，ARGV[5]=limit
// 返回：放行时为窗口内请求数，超限返回 -1
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
end
return -1
`

// SlidingWindow 基于 ZSET 的分布式滑动窗口。
type SlidingWindow struct {
	rdb *rd.Client
	now func() time.Time
}

func NewSlidingWindow(rdb *rd.Client) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, now: time.Now}
}

// Allow 记录一次请求并返回是否放行。
func (w *SlidingWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := w.now()
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

	res, err := w.rdb.Eval(ctx, luaSlidingWindow, []string{key},
		nowMs, nowMs-windowMs, windowMs, member, limit).Int()
	if err != nil {
		return false, err
	}
	return res >= 0, nil
}
