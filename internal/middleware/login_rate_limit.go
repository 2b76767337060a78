package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginWindow = time.Minute

// LoginRateLimit limits login attempts per phone, falling back to the client
// IP, within a fixed one-minute window. Without Redis it is a no-op, and
// cache errors fail open.
func LoginRateLimit(cache *redis.Client, maxPerWindow int) fiber.Handler {
	if maxPerWindow <= 0 {
		maxPerWindow = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:login:" + subject

		ctx := c.UserContext()
		count, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if count == 1 {
			cache.Expire(ctx, key, loginWindow)
		}
		if count > int64(maxPerWindow) {
			retry, err := cache.TTL(ctx, key).Result()
			if err != nil || retry <= 0 {
				retry = loginWindow
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
