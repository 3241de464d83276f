package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RaidRateLimit limits raid attempts per address (not per IP) using Redis.
// Requires the JWT middleware to have run first. This is a burst limiter in
// front of the daily quota, which remains the authoritative cap.
func RaidRateLimit(maxRaids int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		addressVal, exists := c.Get("address")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		address, ok := addressVal.(string)
		if !ok || address == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid address"})
			return
		}

		key := "raid_rl:" + address + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		ctx := context.Background()

		val, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			c.Header("X-RaidRateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if val == 1 {
			redisClient.Expire(ctx, key, window)
		}

		remaining := int64(maxRaids) - val
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RaidRateLimit-Limit", strconv.Itoa(maxRaids))
		c.Header("X-RaidRateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if val > int64(maxRaids) {
			RLBlocked.WithLabelValues("raid:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "raid rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues("raid:" + c.FullPath()).Inc()
		c.Next()
	}
}
