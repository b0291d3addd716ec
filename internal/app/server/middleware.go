package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"greenweb/internal/config"
)

const (
	requestIDHeader   = "X-Request-ID"
	limiterCacheSize  = 50000
	limiterCacheTTL   = 10 * time.Minute
	defaultRatePerSec = 20
	defaultRateBurst  = 40
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger tags every request with an id, echoed back to the client.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug("request",
			"id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
		)
	})
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	buckets gcache.Cache
}

func newClientLimiter() *clientLimiter {
	return &clientLimiter{
		buckets: gcache.New(limiterCacheSize).LRU().Expiration(limiterCacheTTL).Build(),
	}
}

func (l *clientLimiter) allow(client string) bool {
	cfg := config.GetConfig().RateLimit
	if !cfg.Enabled {
		return true
	}

	perSecond, burst := cfg.RequestsPerSecond, cfg.Burst
	if perSecond <= 0 {
		perSecond = defaultRatePerSec
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}

	if value, err := l.buckets.Get(client); err == nil {
		limiter := value.(*rate.Limiter)
		if limiter.Limit() != rate.Limit(perSecond) {
			limiter.SetLimit(rate.Limit(perSecond))
		}
		if limiter.Burst() != burst {
			limiter.SetBurst(burst)
		}
		return limiter.Allow()
	}

	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	_ = l.buckets.Set(client, limiter)
	return limiter.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientAddr(r)) {
			writeError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
