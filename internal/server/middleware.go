package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obsmiddleware "github.com/maqraa/wallet/internal/observability/logger"
	"go.uber.org/zap"
)

const userIDContextKey = "user_id"

// RequireUser resolves the caller identity from the X-User-ID header.
// Authentication lives at the platform edge; this service only needs the
// already-verified subject.
func (s *Server) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(snowflake.ID)
	return userID, ok
}

// WebhookRateLimit throttles webhook deliveries per source address. A
// limiter outage fails open: dropping a gateway callback is worse than
// letting a burst through.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.webhookLimiter == nil || !s.webhookLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		allowed, err := s.webhookLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			obsmiddleware.FromContext(ctx).Warn("webhook rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			s.metrics.RecordRateLimitDenied(c.FullPath())
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
