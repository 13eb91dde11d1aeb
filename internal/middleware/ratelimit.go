package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	rdb "season_pass/pkg/redis"
)

// WindowStore 限流计数存储，线上为 Redis 滑动窗口。
type WindowStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 分布式限流：已登录按用户，否则按 IP。
func RateLimit(store WindowStore, scope string, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if actor, ok := ActorFrom(c); ok && actor.UserID != 0 {
			subject = fmt.Sprintf("user:%d", actor.UserID)
		}

		allowed, err := store.Allow(c.Request.Context(), rdb.RateLimitKey(scope, subject), limit, window)
		if err != nil {
			// Redis 出错时放行（降级策略）
			if log != nil {
				log.Warn("rate limit store unavailable", zap.String("scope", scope), zap.Error(err))
			}
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "too many requests, try again later",
			})
			return
		}
		c.Next()
	}
}
