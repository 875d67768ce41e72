package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/care-access/pkg/httputil"
)

// ActorRateLimiter gives each authenticated actor its own token bucket.
// Idle buckets expire from the cache.
type ActorRateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

// NewActorRateLimiter allows perMinute requests per actor per minute.
func NewActorRateLimiter(perMinute int) *ActorRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &ActorRateLimiter{
		limiters: cache.New(10*time.Minute, 5*time.Minute),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *ActorRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.limiters.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.SetDefault(key, lim)
	return lim
}

// Limit must run after Authenticate. Unauthenticated requests are keyed
// by client address.
func (l *ActorRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if actor, ok := ActorFromContext(c); ok {
			key = "actor:" + actor.UserID.String()
		}

		if !l.limiter(key).Allow() {
			httputil.RespondWithStatus(c, http.StatusTooManyRequests, "too many attempts")
			return
		}
		c.Next()
	}
}
