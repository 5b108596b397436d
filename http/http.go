// Package http is oakhttp's embedding surface: a thin façade over
// internal/server, internal/vhost, and internal/server's middleware
// chain, so a caller never has to import internal/* directly. Build a
// Host, register contexts on it with Handle/HandleFunc, add it (and
// any others) to a Server, and Start.
package http

import (
	"crypto/tls"
	"time"

	"github.com/oakhttp/oakhttp/internal/response"
	"github.com/oakhttp/oakhttp/internal/server"
	"github.com/oakhttp/oakhttp/internal/vhost"
)

// Re-exported so callers of this package never need to import
// internal/server or internal/vhost themselves.
type (
	Handler     = vhost.Handler
	HandlerFunc = server.HandlerFunc
	Context     = server.Context
	Middleware  = server.Middleware
	StatusCode  = response.StatusCode
	Logger      = server.Logger
	Metrics     = server.Metrics
	Field       = server.Field
)

// Handle registers handler on host for method at the given context
// path. The method is matched exactly (after upper-casing); "*" has no
// special meaning. A GET handler also serves HEAD requests on a context
// that has no HEAD handler.
func Handle(host *vhost.VirtualHost, path, method string, handler Handler) {
	host.AddContext(path, method, handler)
}

// HandleFunc is Handle for a plain func(*Context) int handler.
func HandleFunc(host *vhost.VirtualHost, path, method string, handler func(*Context) int) {
	host.AddContext(path, method, server.HandlerFunc(handler))
}

// NewHost creates a named virtual host ("" is the default host every
// Server needs at least one of).
func NewHost(name string) *vhost.VirtualHost {
	return vhost.NewVirtualHost(name)
}

// Use wraps handler in the given middleware chain, outermost first:
// Use(h, a, b) runs a, then b, then h.
func Use(h Handler, mw ...Middleware) Handler {
	return server.Chain(h, mw...)
}

var (
	WithLogging   = server.LoggingMiddleware
	WithRecovery  = server.RecoveryMiddleware
	WithCORS      = server.CORSMiddleware
	WithRequestID = server.RequestIDMiddleware
	WithMetrics   = server.MetricsMiddleware
	WithRateLimit = server.RateLimitMiddleware
)

type (
	RateLimiter = server.RateLimiter
	CORSConfig  = server.CORSConfig
)

var (
	NewRateLimiter    = server.NewRateLimiter
	DefaultCORSConfig = server.DefaultCORSConfig
	NewMetrics        = server.NewMetrics
)

type (
	DefaultLogger = server.DefaultLogger
	NullLogger    = server.NullLogger
)

// F builds a structured logging field, re-exported for embedders that
// pass a custom Logger implementation.
var F = server.F

// Config mirrors internal/server.Config, re-exported so embedders
// build it without an internal import.
type Config struct {
	Addr string

	ReusePort bool
	Backlog   int

	// TLSConfig, when set, wraps the default listener in TLS. Obtaining
	// and rotating the certificate is the embedder's concern; this
	// struct only needs somewhere to plug the result in. Ignored when
	// Socket is set.
	TLSConfig *tls.Config

	// Socket overrides listener construction entirely - a custom
	// transport, a pre-bound fd, or TLS wrapping the embedder wants
	// full control over. Defaults to plain TCP (tcplisten when
	// ReusePort is set), TLS-wrapped when TLSConfig is set.
	Socket SocketFactory

	ReadTimeout    time.Duration
	MaxHeaderLines int

	Hosts   *vhost.Table
	Logger  Logger
	Metrics *Metrics
	Pool    WorkerPool
}

// SocketFactory builds the listener a Server accepts connections on.
type SocketFactory = server.SocketFactory

// WorkerPool runs each accepted connection's transaction loop.
type WorkerPool = server.WorkerPool

// SyncPool is a WorkerPool that runs every submission inline, for
// tests needing deterministic connection handling.
type SyncPool = server.SyncPool

func (c Config) toInternal() server.Config {
	return server.Config{
		Addr:           c.Addr,
		ReusePort:      c.ReusePort,
		Backlog:        c.Backlog,
		TLSConfig:      c.TLSConfig,
		Socket:         c.Socket,
		ReadTimeout:    c.ReadTimeout,
		MaxHeaderLines: c.MaxHeaderLines,
		Hosts:          c.Hosts,
		Logger:         c.Logger,
		Metrics:        c.Metrics,
		Pool:           c.Pool,
	}
}

// Server accepts connections and runs the HTTP/1.1 transaction loop
// against a Table of virtual hosts.
type Server struct {
	inner *server.Server
}

// ListenAndServe binds cfg.Addr and starts accepting connections in
// the background. Call Close to stop.
func ListenAndServe(cfg Config) (*Server, error) {
	inner, err := server.Start(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &Server{inner: inner}, nil
}

// Close stops accepting new connections, lets in-flight transactions
// finish, and releases every handler that holds closeable resources.
func (s *Server) Close() error { return s.inner.Close() }

// Addr returns the listener's bound network address.
func (s *Server) Addr() string { return s.inner.Addr().String() }

// NewTable and AddHost let a caller assemble a multi-host Config.Hosts
// without an internal/vhost import.
func NewTable() *vhost.Table { return vhost.NewTable() }

func AddHost(t *vhost.Table, host *vhost.VirtualHost, aliases ...string) {
	t.Add(host, aliases...)
}
