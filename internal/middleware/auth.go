package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"season_pass/internal/access"
)

const actorKey = "season_pass.actor"

// TokenParser 解析会话令牌。
type TokenParser interface {
	Parse(raw string) (access.Actor, error)
}

// Auth 校验 Bearer token，把当前用户放进 gin context。
func Auth(parser TokenParser, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "missing bearer token"})
			return
		}
		actor, err := parser.Parse(raw)
		if err != nil {
			if log != nil {
				log.Debug("auth token rejected", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "invalid access token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom 取出 Auth 写入的用户；未登录返回 false。
func ActorFrom(c *gin.Context) (access.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return access.Actor{}, false
	}
	actor, ok := v.(access.Actor)
	return actor, ok
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
