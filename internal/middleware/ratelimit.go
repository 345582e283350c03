package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// Prefix namespaces the Redis keys
	Prefix string
	// KeyGenerator returns the bucket a request counts against
	KeyGenerator func(*fiber.Ctx) string
	// LimitReached answers a throttled request
	LimitReached fiber.Handler
}

// DefaultRateLimitConfig limits each client to ten calls a minute per route
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Max:    10,
		Window: time.Minute,
		Prefix: "taskflow:ratelimit",
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + ":" + c.Method() + ":" + c.Route().Path
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Please try again later.",
			})
		},
	}
}

// RateLimit creates a sliding window rate limiter backed by Redis. It
// guards the expensive sync operations (reconcile, retry, batch). A nil
// client disables limiting; a Redis error lets the request through.
func RateLimit(client redis.Cmdable, config ...RateLimitConfig) fiber.Handler {
	cfg := DefaultRateLimitConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) error {
		if client == nil {
			return c.Next()
		}

		ctx := c.UserContext()
		key := fmt.Sprintf("%s:%s", cfg.Prefix, cfg.KeyGenerator(c))
		now := time.Now()
		windowStart := now.Add(-cfg.Window).UnixMicro()

		pipe := client.TxPipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		countCmd := pipe.ZCard(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return c.Next()
		}
		count := countCmd.Val()

		reset := strconv.FormatInt(now.Add(cfg.Window).Unix(), 10)
		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
		c.Set("X-RateLimit-Reset", reset)

		if count >= int64(cfg.Max) {
			c.Set("X-RateLimit-Remaining", "0")
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
			return cfg.LimitReached(c)
		}

		pipe = client.TxPipeline()
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMicro()),
			Member: fmt.Sprintf("%d:%s", now.UnixNano(), GetRequestID(c)),
		})
		pipe.Expire(ctx, key, cfg.Window*2)
		_, _ = pipe.Exec(ctx)

		c.Set("X-RateLimit-Remaining", strconv.Itoa(cfg.Max-int(count)-1))
		return c.Next()
	}
}
