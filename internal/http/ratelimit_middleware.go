package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"oba-connect/internal/service"
)

// RateLimit gatea la ruta con el contador por usuario; cae a IP si no hay
// identidad. Responde 429 con cuota restante y retry-after.
func RateLimit(limiter service.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if sess, ok := GetAuthSession(c); ok {
			key = sess.ID
		}
		decision := limiter.Allow(c.Request.Context(), key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retry := int(decision.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			failErr(c, service.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
