package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	requestIDHeader  = "X-Request-ID"
	clientCookieName = "ingreso_client"
	clientCookieAge  = 400 * 24 * time.Hour

	ctxRequestID = "request_id"
	ctxClientID  = "client_id"
	ctxRoute     = "route"
)

// requestIDMiddleware propagates or assigns a request id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// clientIDMiddleware identifies the browser so that a newer navigation can
// supersede an older one still verifying
func (h *Host) clientIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(clientCookieName)
		if err != nil || id == "" {
			id = ulid.Make().String()
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     clientCookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(clientCookieAge.Seconds()),
				HttpOnly: true,
				Secure:   h.config.Web.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(ctxClientID, id)
		c.Next()
	}
}

// loggingMiddleware logs each request with zerolog and counts it
func (h *Host) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		route := c.GetString(ctxRoute)
		if route == "" {
			route = c.FullPath()
		}
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status())

		h.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", route).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(ctxRequestID)).
			Msg("HTTP request")
	}
}
