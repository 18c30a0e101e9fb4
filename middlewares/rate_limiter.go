package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/payouts/logger"
	"github.com/joy095/payouts/utils"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Example: mutating batch routes share one budget per operator.
// r.POST("/payout-batches/:id/process", limits.New("5-1m", "processBatch"), ...)

// RateLimits builds per-route limiters backed by Redis, or by process memory
// when no Redis client is configured.
type RateLimits struct {
	rdb *redis.Client
}

func NewRateLimits(rdb *redis.Client) *RateLimits {
	return &RateLimits{rdb: rdb}
}

// rateLimitKey keys the limiter on the authenticated operator, falling back
// to the client IP for routes mounted before authentication.
func rateLimitKey(c *gin.Context) string {
	if userID := c.GetString(utils.ContextUserID); userID != "" {
		return userID
	}
	return c.ClientIP()
}

func (l *RateLimits) store(routeID string, period time.Duration) (limiter.Store, error) {
	options := limiter.StoreOptions{
		Prefix:          fmt.Sprintf("rate_limiter:%s", routeID),
		MaxRetry:        3,
		CleanUpInterval: period,
	}
	if l.rdb == nil {
		return memorystore.NewStoreWithOptions(options), nil
	}

	store, err := redisstore.NewStoreWithOptions(l.rdb, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
	}
	return store, nil
}

// ParseCustomRate allows formats like "10-2m", "30-20m", "5-1h", "20-10s".
func ParseCustomRate(rateStr string) (limiter.Rate, error) {
	parts := strings.Split(rateStr, "-")
	if len(parts) != 2 {
		return limiter.Rate{}, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	limit, err := strconv.Atoi(parts[0])
	if err != nil || limit <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid limit: %s", parts[0])
	}

	durationStr := parts[1]
	if durationStr == "" {
		return limiter.Rate{}, fmt.Errorf("unsupported period: %s", durationStr)
	}
	unit := map[byte]time.Duration{'s': time.Second, 'm': time.Minute, 'h': time.Hour}[durationStr[len(durationStr)-1]]
	if unit == 0 {
		return limiter.Rate{}, fmt.Errorf("unsupported period: %s", durationStr)
	}
	n, err := strconv.Atoi(durationStr[:len(durationStr)-1])
	if err != nil || n <= 0 {
		return limiter.Rate{}, fmt.Errorf("invalid duration %q", durationStr)
	}

	return limiter.Rate{
		Period: time.Duration(n) * unit,
		Limit:  int64(limit),
	}, nil
}

// New returns a limiter for one route. A bad rate or an unavailable store
// degrades to a pass-through handler.
func (l *RateLimits) New(rateStr, routeID string) gin.HandlerFunc {
	rate, err := ParseCustomRate(rateStr)
	if err != nil {
		logger.ErrorLogger.Errorf("Error parsing rate for route %s: %v", routeID, err)
		return func(c *gin.Context) { c.Next() }
	}

	store, err := l.store(routeID, rate.Period)
	if err != nil {
		logger.ErrorLogger.Errorf("Error creating rate limit store for route %s: %v", routeID, err)
		return func(c *gin.Context) { c.Next() }
	}

	return ginmiddleware.NewMiddleware(limiter.New(store, rate), ginmiddleware.WithKeyGetter(rateLimitKey))
}
