package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/oakhttp/oakhttp/internal/response"
	"github.com/oakhttp/oakhttp/internal/vhost"
)

// Middleware wraps a Handler with cross-cutting behavior. Middlewares
// compose outside-in: Chain(h, a, b) runs a, then b, then h.
type Middleware func(vhost.Handler) vhost.Handler

func Chain(h vhost.Handler, mw ...Middleware) vhost.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

type middlewareFunc func(w vhost.ResponseWriter, r vhost.Request) int

func (f middlewareFunc) Serve(w vhost.ResponseWriter, r vhost.Request) int { return f(w, r) }

// LoggingMiddleware logs one line per completed transaction.
func LoggingMiddleware(logger Logger) Middleware {
	return func(next vhost.Handler) vhost.Handler {
		return middlewareFunc(func(w vhost.ResponseWriter, r vhost.Request) int {
			start := time.Now()
			status := next.Serve(w, r)
			logger.Info("request handled",
				F("method", r.GetMethod()),
				F("path", r.GetPath()),
				F("status", status),
				F("duration_ms", time.Since(start).Milliseconds()),
			)
			return status
		})
	}
}

// RecoveryMiddleware turns a panicking handler into a 500 response
// instead of tearing down the connection goroutine.
func RecoveryMiddleware(logger Logger) Middleware {
	return func(next vhost.Handler) vhost.Handler {
		return middlewareFunc(func(w vhost.ResponseWriter, r vhost.Request) (status int) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						F("error", fmt.Sprint(err)),
						F("stack", string(debug.Stack())),
						F("path", r.GetPath()),
					)
					if resp, ok := w.(*response.Response); ok && !resp.HeadersSent() {
						_ = resp.SendError(response.StatusInternalServerError, "")
					}
					status = 0
				}
			}()
			return next.Serve(w, r)
		})
	}
}

// RateLimiter is a per-key token bucket, reset once per window.
type RateLimiter struct {
	mu              sync.Mutex
	buckets         map[string]*bucket
	rate            int
	window          time.Duration
	cleanupInterval time.Duration
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:         make(map[string]*bucket),
		rate:            rate,
		window:          window,
		cleanupInterval: window * 2,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: rl.rate - 1, lastReset: now}
		return true
	}
	if now.Sub(b.lastReset) >= rl.window {
		b.tokens = rl.rate - 1
		b.lastReset = now
		return true
	}
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, b := range rl.buckets {
			if now.Sub(b.lastReset) > rl.window*2 {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// remoteHost strips the port from a RemoteAddr for use as a rate
// limit / logging key.
func remoteHost(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i != -1 {
		return addr[:i]
	}
	return addr
}

func RateLimitMiddleware(limiter *RateLimiter) Middleware {
	return func(next vhost.Handler) vhost.Handler {
		return middlewareFunc(func(w vhost.ResponseWriter, r vhost.Request) int {
			req, ok := r.(interface{ GetRemoteAddr() string })
			key := ""
			if ok {
				key = remoteHost(req.GetRemoteAddr())
			}
			if !limiter.Allow(key) {
				if resp, ok := w.(*response.Response); ok {
					_ = resp.SendError(response.StatusTooManyRequests, "rate limit exceeded")
				}
				return 0
			}
			return next.Serve(w, r)
		})
	}
}

// CORSConfig configures CORSMiddleware.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

func isAllowedOrigin(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// CORSMiddleware answers preflight OPTIONS requests directly and
// otherwise annotates the response with the configured CORS headers.
func CORSMiddleware(config CORSConfig) Middleware {
	return func(next vhost.Handler) vhost.Handler {
		return middlewareFunc(func(w vhost.ResponseWriter, r vhost.Request) int {
			resp, ok := w.(*response.Response)
			if !ok {
				return next.Serve(w, r)
			}
			originHdr, _ := headerFromRequest(r, "Origin")
			if isAllowedOrigin(originHdr, config.AllowedOrigins) {
				resp.Headers.ReplaceFirst("Access-Control-Allow-Origin", originHdr)
				resp.Headers.ReplaceFirst("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				resp.Headers.ReplaceFirst("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				if config.AllowCredentials {
					resp.Headers.ReplaceFirst("Access-Control-Allow-Credentials", "true")
				}
				if config.MaxAge > 0 {
					resp.Headers.ReplaceFirst("Access-Control-Max-Age", fmt.Sprintf("%d", int(config.MaxAge.Seconds())))
				}
			}

			if r.GetMethod() == "OPTIONS" {
				_ = resp.SendHeaders(response.StatusNoContent, response.Options{Length: 0})
				return 0
			}
			return next.Serve(w, r)
		})
	}
}

func headerFromRequest(r vhost.Request, key string) (string, bool) {
	req, ok := r.(interface{ HeaderValue(string) (string, bool) })
	if !ok {
		return "", false
	}
	return req.HeaderValue(key)
}

// RequestIDMiddleware stamps every response with a fresh X-Request-ID.
func RequestIDMiddleware() Middleware {
	return func(next vhost.Handler) vhost.Handler {
		return middlewareFunc(func(w vhost.ResponseWriter, r vhost.Request) int {
			if resp, ok := w.(*response.Response); ok {
				resp.Headers.ReplaceFirst("X-Request-ID", newRequestID())
			}
			return next.Serve(w, r)
		})
	}
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// MetricsMiddleware records every transaction's status and latency.
func MetricsMiddleware(metrics *Metrics) Middleware {
	return func(next vhost.Handler) vhost.Handler {
		return middlewareFunc(func(w vhost.ResponseWriter, r vhost.Request) int {
			metrics.ActiveConnections.Add(1)
			defer metrics.ActiveConnections.Add(-1)

			start := time.Now()
			ret := next.Serve(w, r)
			status := int(response.StatusOK)
			if ret != 0 {
				status = ret
			} else if resp, ok := w.(*response.Response); ok {
				status = int(resp.Status())
			}
			metrics.RecordRequest(status, time.Since(start))
			return ret
		})
	}
}
