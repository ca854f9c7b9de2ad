package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"github.com/goldenzaika/api/internal/platform/httpx"
	"github.com/goldenzaika/api/internal/platform/requestctx"
	"go.uber.org/zap"
)

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// CallerKey counts authenticated callers by uid and everyone else by client IP.
func CallerKey(r *http.Request) string {
	if uid := requestctx.Actor(r.Context()); uid != "" {
		return "uid:" + uid
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces limiter on every request. Limiter failures are logged and the request
// proceeds.
func Middleware(tier string, limiter Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = CallerKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := key(r)
			decision, err := limiter.Allow(r.Context(), bucket)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("tier", tier), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			header := w.Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				logger.Warn("rate limit exceeded",
					zap.String("tier", tier),
					zap.String("bucket", bucket),
					zap.String("path", r.URL.Path),
				)
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "Too Many Requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
