package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/totegamma/concrnt-parallel/internal/domain"
	"github.com/totegamma/concrnt-parallel/internal/present/rest/presenter"
)

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(domain.RequestIdHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(domain.RequestIdHeader, id)

		ctx := context.WithValue(c.Request().Context(), domain.RequestIdCtxKey, id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RateLimiter applies a token bucket per requester, or per client ip for
// anonymous requests.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorTTL = 10 * time.Minute

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*visitor{},
	}
}

func (r *RateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range r.limiters {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(r.limiters, k)
		}
	}

	v, ok := r.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (r *RateLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := Requester(c.Request().Context())
		if key == "" {
			key = c.RealIP()
		}
		if !r.allow(key, time.Now()) {
			return presenter.TooManyRequests(c)
		}
		return next(c)
	}
}
