package http

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"github.com/tazhibayda/learnpath-auth/internal/auth"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"github.com/tazhibayda/learnpath-auth/internal/log"
	"github.com/tazhibayda/learnpath-auth/internal/metrics"
	"github.com/tazhibayda/learnpath-auth/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	authUserKey     = "authUser"
)

// RequestID reuses an inbound X-Request-ID or mints one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger puts a request-scoped zap logger on the context and logs one line per request.
func Logger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		lg := log.WithDD(ctx, base,
			zap.String("request_id", log.RequestID(ctx)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(log.WithContext(ctx, lg))

		c.Next()

		lg = log.FromContext(c.Request.Context())
		lg.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", ClientIP(c)),
		)
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ReqDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// AuthRequired resolves the bearer token to a user and stores it under authUserKey.
func AuthRequired(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "bearer ") {
			respondError(c, apperrors.New(apperrors.KindUnauthorized, "missing bearer token"))
			return
		}
		tok := strings.TrimSpace(h[len("Bearer "):])
		if tok == "" {
			respondError(c, apperrors.New(apperrors.KindUnauthorized, "missing bearer token"))
			return
		}

		u, err := svc.Authenticate(c.Request.Context(), tok)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(authUserKey, u)
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(log.WithContext(ctx, log.FromContext(ctx).With(zap.String("user_id", u.ID.Hex()))))
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	u, _ := c.Get(authUserKey)
	return u.(*domain.User)
}

func ClientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return host
	}
	return ip
}

// RateLimit rejects clients over budget with 429. A limiter backend error lets
// the request through.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ClientIP(c)
		ok, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			log.FromContext(c.Request.Context()).Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			respondError(c, apperrors.New(apperrors.KindRateLimited, "too many requests, try again later"))
			return
		}
		c.Next()
	}
}
