package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/metrics"
)

// Rule is one route's limit
type Rule struct {
	Name    string // metrics label and key prefix
	Max     int
	Window  time.Duration
	Message string
}

// Middleware rejects requests beyond rule with 429. Limiter errors let the request through.
func Middleware(l Limiter, rule Rule, log zerolog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	message := rule.Message
	if message == "" {
		message = "Too many requests"
	}

	return func(c *gin.Context) {
		key := rule.Name + ":" + c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key, rule.Max, rule.Window)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Rate limiter failed")
			c.Next()
			return
		}

		if !allowed {
			m.RecordRateLimited(rule.Name)
			log.Warn().Str("route", rule.Name).Str("client_ip", c.ClientIP()).Msg("Rate limit exceeded")
			c.Header("Retry-After", retryAfter(rule.Window))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}

		c.Next()
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
