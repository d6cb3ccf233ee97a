package middleware

import (
	"github.com/gin-gonic/gin"

	"storyreel/internal/pkg/id"
)

const requestIDHeader = "X-Request-ID"

// RequestID 透传或生成请求ID，写入 context 与响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = id.New()
		}
		c.Set("request_id", rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}
