package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	authPathPrefix   = "/auth"
	limiterIdleAfter = 10 * time.Minute
	limiterSweepSize = 1000
)

// bucketSet holds one token bucket per client key for a single policy.
type bucketSet struct {
	rpm     int
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucketSet(rpm int) *bucketSet {
	if rpm <= 0 {
		return nil
	}
	return &bucketSet{rpm: rpm, buckets: map[string]*bucket{}}
}

// allow reports whether key may proceed. A nil set never limits.
func (s *bucketSet) allow(key string, now time.Time) bool {
	if s == nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		if len(s.buckets) >= limiterSweepSize {
			s.sweepLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.rpm)), s.rpm)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

func (s *bucketSet) sweepLocked(now time.Time) {
	cutoff := now.Add(-limiterIdleAfter)
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// RateLimitMiddleware throttles per client IP. Everything under /auth draws
// from a separate, stricter budget; a non-positive general RPM leaves the
// other routes unlimited.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	general    *bucketSet
	auth       *bucketSet
	now        func() time.Time
}

func NewRateLimitMiddleware(generalRPM int, authRPM int) *RateLimitMiddleware {
	if authRPM <= 0 {
		authRPM = 10
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		general:    newBucketSet(generalRPM),
		auth:       newBucketSet(authRPM),
		now:        time.Now,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy := m.general
		if strings.HasPrefix(strings.ToLower(r.URL.Path), authPathPrefix) {
			policy = m.auth
		}

		if !policy.allow(extractClientIP(r), m.now()) {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute/time.Second)))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractClientIP prefers proxy headers, then the connection's remote host.
func extractClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}
