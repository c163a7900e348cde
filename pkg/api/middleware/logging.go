package middleware

import (
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/xlog"
	"github.com/gin-gonic/gin"
)

// Logging 返回一个简单的 HTTP 请求日志中间件。
// 会把 log 注入请求 context，并记录 method、path、status、latency 等信息。
func Logging(log *xlog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(xlog.WithContext(c.Request.Context(), log))

		c.Next()

		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
