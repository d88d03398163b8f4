package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealer-support-server/internal/limiter"
	"dealer-support-server/pkg/response"
)

// RateLimitMiddleware 按客户端 IP 限流
// 限流器出错时放行，只记录日志
// 参数:
//   - l: 限流器
//   - limit: 窗口内允许的请求数
//   - window: 时间窗口
//   - log: 日志实例
func RateLimitMiddleware(l limiter.Limiter, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "visitor:" + c.ClientIP()
		ok, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Warn("rate limiter failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			response.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
