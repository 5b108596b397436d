package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oakhttp/oakhttp/internal/body"
	"github.com/oakhttp/oakhttp/internal/headers"
	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
)

// serveConn runs the transaction loop for one accepted connection:
// parse a request, preprocess it, dispatch it, drain whatever body
// the handler didn't read, and either loop for the next request or
// close (spec §4.11).
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	_, isTLS := conn.(*tls.Conn)
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	br := getBufioReader(conn)
	defer putBufioReader(br)

	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		req, err := request.Parse(br, request.Limits{MaxHeaderLines: s.cfg.MaxHeaderLines}, conn.RemoteAddr().String(), conn.LocalAddr().String(), isTLS)
		if err != nil {
			s.handleParseError(conn, err)
			return
		}

		resp := response.New(conn, req.Method == "HEAD", req.Version, headerOrEmpty(req.Headers, "Accept-Encoding"))

		if !s.preprocess(req, resp) {
			_ = resp.Close()
			if shouldClose(req, resp) {
				return
			}
			drainBody(req)
			continue
		}

		start := time.Now()
		panicked := s.routeRecovered(req, resp)
		_ = resp.Close()
		s.cfg.Metrics.RecordRequest(int(resp.Status()), time.Since(start))

		s.cfg.Logger.Debug("request",
			F("method", req.Method),
			F("path", req.Path),
			F("status", int(resp.Status())),
			F("remote", req.RemoteAddr),
		)

		// A recovered panic leaves the stream in an unknown state - no
		// attempt to drain and reuse it, matching the original's
		// unconditional "break" after catching a Throwable mid-transaction.
		if panicked || shouldClose(req, resp) {
			return
		}
		drainBody(req)
		conn.SetReadDeadline(time.Time{})
	}
}

// preprocess applies spec §4.11's pre-dispatch checks. It returns
// false when it already produced a complete response (400 or 417), or
// could not write the 100 Continue interim response, and dispatch must
// be skipped.
func (s *Server) preprocess(req *request.Request, resp *response.Response) bool {
	switch {
	case req.IsHTTP11():
		if _, ok := req.Headers.Get("Host"); !ok {
			_ = resp.SendError(response.StatusBadRequest, "missing Host header")
			return false
		}
	case req.IsHTTP10() || req.IsHTTP09():
		stripHopByHopHeaders(req.Headers)
	default:
		_ = resp.SendError(response.StatusBadRequest, "unsupported HTTP version")
		return false
	}

	if expect, ok := req.Headers.Get("Expect"); ok {
		if !strings.EqualFold(strings.TrimSpace(expect), "100-continue") {
			_ = resp.SendError(response.StatusExpectationFailed, "")
			return false
		}
		if err := resp.SendInterim(response.StatusContinue); err != nil {
			return false
		}
	}

	return true
}

// stripHopByHopHeaders removes any header named as a token in
// Connection - those are meaningful only to the immediate peer and
// never reach a handler.
func stripHopByHopHeaders(h *headers.Headers) {
	v, ok := h.Get("Connection")
	if !ok {
		return
	}
	for _, tok := range strings.Split(v, ",") {
		name := strings.TrimSpace(tok)
		if strings.EqualFold(name, "close") || strings.EqualFold(name, "keep-alive") || name == "" {
			continue
		}
		h.RemoveAll(name)
	}
}

// route resolves the virtual host and context for req and dispatches
// it. The directory-index retry (spec §4.10) happens inside dispatch's
// invoke, against whichever context matched req.Path as given.
func (s *Server) route(req *request.Request, resp *response.Response) {
	host := s.cfg.Hosts.Lookup(req.Host())
	ctx := host.GetContext(req.Path)
	dispatch(host, ctx, req, resp)
}

// routeRecovered runs route with the connection loop's own panic
// recovery (spec §7: "the connection loop is the only component that
// converts uncaught handler failures into client-visible errors"),
// independent of whether the matched handler was wrapped in
// RecoveryMiddleware. An unrecovered panic in Go kills the whole
// process, not just the goroutine it occurred in - strictly worse than
// the per-connection isolation the original gets from one thread per
// connection - so this is the backstop, not an alternative to the
// middleware. It reports whether it recovered a panic, so serveConn
// can close the connection unconditionally afterward rather than try
// to reuse a stream left in an unknown state.
func (s *Server) routeRecovered(req *request.Request, resp *response.Response) (panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			panicked = true
			s.cfg.Logger.Error("panic recovered",
				F("error", fmt.Sprint(err)),
				F("stack", string(debug.Stack())),
				F("path", req.Path),
			)
			if !resp.HeadersSent() {
				_ = resp.SendError(response.StatusInternalServerError, "")
			}
		}
	}()
	s.route(req, resp)
	return false
}

// handleParseError sends the outcome spec §7's taxonomy requires for a
// connection that never produced a *request.Request: silent close when
// nothing of a request arrived at all, 408 when the read deadline
// (conn.go's serveConn loop) fired partway through one, 400 for any
// other malformed input.
func (s *Server) handleParseError(conn net.Conn, err error) {
	if err == request.ErrMissingRequestLine {
		return
	}
	resp := response.New(conn, false, "HTTP/1.1", "")
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		_ = resp.SendError(response.StatusRequestTimeout, "")
	} else {
		_ = resp.SendError(response.StatusBadRequest, err.Error())
	}
	_ = resp.Close()
}

func headerOrEmpty(h *headers.Headers, key string) string {
	v, _ := h.Get(key)
	return v
}

// drainBody discards whatever of the request body the handler left
// unread, so the next request line on this connection starts at the
// right offset.
func drainBody(req *request.Request) {
	_, _ = body.Drain(req.Body)
}
