package api

import (
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ClientLimiter holds one token bucket per client address. Idle buckets
// expire from the cache.
type ClientLimiter struct {
	perMinute int
	limiters  *cache.Cache
}

// NewClientLimiter allows perMinute requests per client per minute, with a
// burst of the same size. It returns nil when perMinute <= 0.
func NewClientLimiter(perMinute int) *ClientLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ClientLimiter{
		perMinute: perMinute,
		limiters:  cache.New(10*time.Minute, 5*time.Minute),
	}
}

// Allow reports whether client may make a request now.
func (l *ClientLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}
	return l.limiter(client).Allow()
}

func (l *ClientLimiter) limiter(client string) *rate.Limiter {
	if v, ok := l.limiters.Get(client); ok {
		lim := v.(*rate.Limiter)
		l.limiters.Set(client, lim, cache.DefaultExpiration)
		return lim
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	if err := l.limiters.Add(client, lim, cache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := l.limiters.Get(client); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Middleware rejects requests over the client's budget with 429. A nil
// limiter passes everything through.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
