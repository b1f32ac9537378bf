package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fastygo/soup/api/transport"
	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/internal/config"
	"github.com/fastygo/soup/pkg/httpcontext"
)

// UserRateLimiter keeps one token bucket per user. Buckets of users idle for
// longer than the configured TTL are evicted, as are the least recently used
// ones once MaxUsers is reached.
type UserRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
	logger   *zap.Logger
}

func NewUserRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *UserRateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RPS)
	}
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = 10000
	}
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserRateLimiter{
		limit:    rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.MaxUsers, nil, cfg.UserTTL),
		logger:   logger,
	}
}

// Allow consumes one token of userID's bucket.
func (l *UserRateLimiter) Allow(userID string) bool {
	limiter, ok := l.limiters.Get(userID)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(userID, limiter)
	}
	return limiter.Allow()
}

// Middleware must run after JWTAuth so the user id is known.
func (l *UserRateLimiter) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID := string(ctx.Request.Header.Peek(httpcontext.HeaderUserID))
		if userID == "" {
			userID = ctx.RemoteIP().String()
		}
		if !l.Allow(userID) {
			l.logger.Debug("rate limited", zap.String("user_id", userID), zap.ByteString("path", ctx.Path()))
			ctx.Response.Header.Set("Retry-After", strconv.Itoa(l.retryAfter()))
			writeError(ctx, http.StatusTooManyRequests,
				transport.NewError(string(domain.ErrCodeTooManyRequests), domain.ErrRateLimited.Message, nil))
			return
		}
		next(ctx)
	}
}

func (l *UserRateLimiter) retryAfter() int {
	secs := int(1 / float64(l.limit))
	if secs < 1 {
		return 1
	}
	return secs
}
