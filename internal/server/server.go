// Package server implements the listen/accept loop, the per-connection
// transaction loop (spec §4.11), and method dispatch against a
// virtual-host table (spec §4.10 / §4.9).
package server

import (
	"crypto/tls"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/tcplisten"

	"github.com/oakhttp/oakhttp/internal/vhost"
)

// SocketFactory builds the listener a Server accepts connections on,
// given the address, reuseport/backlog tuning, and an optional TLS
// config. Config.Socket lets a caller supply their own listener
// construction - TLS termination, a custom transport, a pre-bound fd -
// instead of the plain tcplisten/net.Listen default. TLS certificate
// management itself is the caller's concern; this signature only needs
// somewhere to plug in the resulting tls.Config. The signature takes
// plain values rather than Config itself so embedders of the public
// façade can implement one without an internal import.
type SocketFactory func(addr string, reusePort bool, backlog int, tlsConfig *tls.Config) (net.Listener, error)

// Config is the configuration surface a caller assembles before
// starting a Server: the listening address, the virtual-host table
// routes were registered on, and the ambient logging/metrics/limits
// knobs.
type Config struct {
	Addr string

	// ReusePort enables SO_REUSEPORT via tcplisten, letting several
	// processes share one port. Only honored on platforms tcplisten
	// supports; Start falls back to net.Listen otherwise. Ignored when
	// Socket is set.
	ReusePort bool
	Backlog   int

	// TLSConfig, when non-nil, wraps the listener the default socket
	// factory produces in tls.NewListener. Ignored when Socket is set -
	// a custom factory owns its own TLS wrapping.
	TLSConfig *tls.Config

	// Socket overrides listener construction entirely. Defaults to
	// defaultSocketFactory (plain TCP, or TLS-wrapped when TLSConfig is
	// set).
	Socket SocketFactory

	ReadTimeout    time.Duration
	MaxHeaderLines int

	Hosts   *vhost.Table
	Logger  Logger
	Metrics *Metrics

	// Pool runs each accepted connection's transaction loop. Defaults
	// to a goroutine-per-connection pool; inject SyncPool in tests
	// that need deterministic, synchronous handling.
	Pool WorkerPool
}

func (c *Config) fillDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.MaxHeaderLines == 0 {
		c.MaxHeaderLines = 100
	}
	if c.Hosts == nil {
		c.Hosts = vhost.NewTable()
		c.Hosts.Add(vhost.NewVirtualHost(""))
	}
	if c.Logger == nil {
		c.Logger = &DefaultLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
	if c.Pool == nil {
		c.Pool = goroutinePool{}
	}
	if c.Socket == nil {
		c.Socket = defaultSocketFactory
	}
}

// Server accepts connections on one listener and runs the transaction
// loop on each.
type Server struct {
	cfg      Config
	listener net.Listener
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// Start binds cfg.Addr and begins accepting connections in a
// background goroutine. Call Close to stop.
func Start(cfg Config) (*Server, error) {
	cfg.fillDefaults()

	ln, err := cfg.Socket(cfg.Addr, cfg.ReusePort, cfg.Backlog, cfg.TLSConfig)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, listener: ln}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// defaultSocketFactory opens a TCP listener, using tcplisten for
// SO_REUSEPORT when requested and supported, net.Listen otherwise, and
// wrapping the result in a TLS listener when tlsConfig is set.
func defaultSocketFactory(addr string, reusePort bool, backlog int, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := listen(addr, reusePort, backlog)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		return tls.NewListener(ln, tlsConfig), nil
	}
	return ln, nil
}

// listen opens a TCP listener, using tcplisten for SO_REUSEPORT when
// requested and supported; net.Listen otherwise.
func listen(addr string, reusePort bool, backlog int) (net.Listener, error) {
	if reusePort && tcplistenSupported() {
		cfg := &tcplisten.Config{ReusePort: true, Backlog: backlog}
		return cfg.NewListener("tcp", addr)
	}
	return net.Listen("tcp", addr)
}

func tcplistenSupported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "dragonfly", "freebsd", "netbsd", "openbsd":
		return true
	default:
		return false
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.cfg.Logger.Warn("accept failed", F("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		s.cfg.Pool.Submit(func() {
			defer s.wg.Done()
			s.serveConn(conn)
		})
	}
}

// Close stops accepting new connections, waits until every accepted
// connection's request loop has ended (the client closes, a response
// closes the connection, or an idle connection's read deadline
// passes), and runs Close on every registered handler that implements
// vhost.Closer.
func (s *Server) Close() error {
	s.closed.Store(true)
	err := s.listener.Close()
	s.wg.Wait()

	for _, h := range s.cfg.Hosts.AllHandlers() {
		if c, ok := h.(vhost.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}

// Addr returns the listener's bound network address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }
