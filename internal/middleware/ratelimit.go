package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/response"
)

// RateLimiter is a per-IP fixed-window limiter shared by every server
// instance through Redis.
type RateLimiter struct {
	rdb      *redis.Client
	scope    string
	rate     int           // Requests per window
	interval time.Duration // Window length
	log      zerolog.Logger
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute) whose
// counters live under scope.
func NewRateLimiter(rdb *redis.Client, scope string, rate int, interval time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:      rdb,
		scope:    scope,
		rate:     rate,
		interval: interval,
		log:      log.With().Str("component", "rate_limiter").Str("scope", scope).Logger(),
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// Redis errors let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now()
		window := now.UnixNano() / int64(rl.interval)
		key := config.CacheKey.RateLimitKey(rl.scope, c.ClientIP(), window)

		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.interval)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		count := int(incr.Val())
		remaining := rl.rate - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > rl.rate {
			windowEnd := time.Unix(0, (window+1)*int64(rl.interval))
			c.Header("Retry-After", strconv.Itoa(int(windowEnd.Sub(now).Seconds())+1))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		c.Next()
	}
}
