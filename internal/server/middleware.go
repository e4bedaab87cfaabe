package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"

	loggerKey  = "truthguard.logger"
	hubKey     = "truthguard.sentry"
	failureKey = "truthguard.failure"
)

// requestID tags the request with an ID, a child logger and a Sentry hub
func requestID(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		log := base.With().Str("request_id", id).Logger()
		c.Set(loggerKey, log)
		c.Request = c.Request.WithContext(log.WithContext(c.Request.Context()))

		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetTag("request_id", id)
		hub.Scope().SetRequest(c.Request)
		c.Set(hubKey, hub)

		c.Next()
	}
}

// recovery turns panics into a 500 with the route's failure message
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			l := logger(c)
			l.Error().Err(err).Str("route", c.FullPath()).Msg("panic in handler")
			if hub := sentryHub(c); hub != nil {
				hub.Recover(rec)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": failureMessage(c)})
		}()
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		log := logger(c)
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev.Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// originGuard rejects requests whose Origin is not allow-listed. An empty
// list turns the guard off.
func originGuard(allowed []string) gin.HandlerFunc {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}

	return func(c *gin.Context) {
		if len(set) == 0 || c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		if !set[c.GetHeader("Origin")] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unauthorized access"})
			return
		}
		c.Next()
	}
}

// failure sets the body returned when the route fails unexpectedly
func failure(msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(failureKey, msg)
		c.Next()
	}
}

func (s *Server) rateLimit(c *gin.Context) {
	if s.clients != nil && !s.clients.AllowKey(c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}
	c.Next()
}

func failureMessage(c *gin.Context) string {
	if msg := c.GetString(failureKey); msg != "" {
		return msg
	}
	return "Internal server error"
}

func logger(c *gin.Context) zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return zerolog.Nop()
}

func sentryHub(c *gin.Context) *sentry.Hub {
	if v, ok := c.Get(hubKey); ok {
		if h, ok := v.(*sentry.Hub); ok {
			return h
		}
	}
	return nil
}
