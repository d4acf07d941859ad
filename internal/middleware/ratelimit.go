package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/walletflow/walletflow/internal/identity"
)

// RateLimit limits money movement requests per owner per minute, falling back
// to the client IP for unauthenticated calls. It is a no-op without Redis and
// fails open on cache errors.
func RateLimit(cache *redis.Client, scope string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 60
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.IP()
		if caller, ok := identity.FromContext(c.UserContext()); ok {
			subject = strconv.FormatInt(caller.OwnerID(), 10)
		}
		window := time.Now().UTC().Unix() / 60
		key := fmt.Sprintf("rl:%s:%s:%d", scope, subject, window)

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMin))
		if remaining := int64(maxPerMin) - cnt; remaining >= 0 {
			c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		} else {
			c.Set("X-RateLimit-Remaining", "0")
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
