package core

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"coworkgate/internal/types"
)

const (
	defaultKioskPerMinute = 30
	defaultKioskBurst     = 5

	limiterEntryTTL        = 15 * time.Minute
	limiterCleanupInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP. Idle buckets are
// swept lazily on access.
type ipRateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	entries     map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	if perMinute <= 0 {
		perMinute = defaultKioskPerMinute
	}
	if burst <= 0 {
		burst = defaultKioskBurst
	}
	return &ipRateLimiter{
		limit:       rate.Every(time.Minute / time.Duration(perMinute)),
		burst:       burst,
		entries:     make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// reserve reports whether key may proceed and, if not, how long to wait.
func (l *ipRateLimiter) reserve(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= limiterCleanupInterval {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterEntryTTL {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	res := e.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// KioskRateLimit throttles kiosk routes per client IP using the
// Security.KioskRatePerMinute and Security.KioskBurst settings. Rejected
// requests get 429 rate_limit_exceeded with a Retry-After header.
func (s *Server) KioskRateLimit(next http.Handler) http.Handler {
	if s.kiosk == nil {
		perMinute, burst := defaultKioskPerMinute, defaultKioskBurst
		if s.Config != nil {
			perMinute, burst = s.Config.Security.KioskRatePerMinute, s.Config.Security.KioskBurst
		}
		s.kiosk = newIPRateLimiter(perMinute, burst)
	}
	limiter := s.kiosk

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractClientIP(r)
		allowed, wait := limiter.reserve(ip)
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		types.LoggerFromContext(r.Context(), s.Logger).Warn("kiosk rate limit exceeded",
			slog.String("client_ip", ip),
			slog.String("path", r.URL.Path),
		)

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

		JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeRateLimit),
				Message:   "too many access attempts, retry shortly",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
	})
}

// extractClientIP returns the first X-Forwarded-For entry when present,
// otherwise RemoteAddr without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
