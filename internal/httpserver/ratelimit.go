package httpserver

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JeffZl/frontenduas/internal/domain"
)

const (
	sendBurst   = 5
	limiterIdle = 5 * time.Minute
	sweepEvery  = time.Minute
)

// UserRateLimiter throttles a route per authenticated user.
type UserRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	log       *zap.Logger
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows perMinute requests per user with a small burst.
// perMinute <= 0 disables limiting.
func NewUserRateLimiter(perMinute int, log *zap.Logger) *UserRateLimiter {
	rps := rate.Inf
	if perMinute > 0 {
		rps = rate.Limit(float64(perMinute) / 60.0)
	}
	return &UserRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rps,
		burst:    sendBurst,
		log:      log,
		now:      time.Now,
	}
}

func (l *UserRateLimiter) allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > sweepEvery {
		cutoff := now.Add(-limiterIdle)
		for k, v := range l.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware must run after AuthMiddleware.
func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(user.ID) {
			l.log.Warn("rate limit exceeded", zap.String("user_id", user.ID), zap.String("path", r.URL.Path))
			writeError(w, l.log, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
