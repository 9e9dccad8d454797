package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10_000
	routeUnmatched    = "unmatched"
)

// ClientLimiter is a token bucket rate limiter per client address.
type ClientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewClientLimiter creates a limiter granting each client rps requests per second with bursts of up to burst requests.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the client may send a request right now.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	limiter, exists := l.limiters[client]
	if !exists {
		if len(l.limiters) >= maxTrackedClients {
			clear(l.limiters)
		}

		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		client := clientAddress(r)
		if !s.limiter.Allow(client) {
			if s.logger != nil {
				s.logger.Warn(logMsgRateLimited, logAttrRemoteAddr, client, logAttrMethod, r.Method)
			}

			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// observe logs each request and records its count and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := routePattern(r)

		if s.metrics != nil {
			s.metrics.observe(r.Method, route, strconv.Itoa(status), duration)
		}

		if s.logger != nil {
			s.logger.Debug(
				logMsgRequestHandled,
				logAttrMethod, r.Method,
				logAttrRoute, route,
				logAttrStatus, status,
				logAttrRemoteAddr, r.RemoteAddr,
				logAttrDurationMS, float64(duration.Microseconds())/1000.0,
			)
		}
	})
}

func routePattern(r *http.Request) string {
	routeCtx := chi.RouteContext(r.Context())
	if routeCtx == nil {
		return routeUnmatched
	}

	if pattern := routeCtx.RoutePattern(); pattern != "" {
		return pattern
	}

	return routeUnmatched
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
