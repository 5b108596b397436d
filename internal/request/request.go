// Package request implements the HTTP/1.1 request line, header block,
// and body-framing parser (spec's Request Parser component), plus the
// Request value handlers receive.
package request

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/oakhttp/oakhttp/internal/headers"
	"github.com/oakhttp/oakhttp/internal/textproto"
)

var errEmptyInt = errors.New("request: not a non-negative integer")

// Request is constructed once per transaction by Parse and is
// immutable to handlers except SetPath (path rewriting, e.g. the
// dispatcher's directory-index retry) and the HEAD->GET method
// override applied by the dispatcher.
type Request struct {
	Method     string
	Target     string // raw request-target, as received
	Path       string // path part of Target (not percent-decoded), duplicate slashes collapsed
	RawQuery   string
	Version    string
	Headers    *headers.Headers
	Body       BodyReader
	RemoteAddr string
	LocalAddr  string
	Secure     bool

	baseURLOnce sync.Once
	baseURL     *url.URL

	paramsOnce sync.Once
	params     []textproto.FormValue
	paramsErr  error
}

// BodyReader is the framed request body: Content-Length-limited,
// chunked-decoded, or close-delimited, depending on what the header
// block declared.
type BodyReader interface {
	Read(p []byte) (int, error)
}

// SetPath overrides Path, the path used for routing (the dispatcher
// uses this for its directory-index retry). It does not affect Target
// or RawQuery.
func (r *Request) SetPath(path string) { r.Path = path }

// GetMethod and GetPath satisfy internal/vhost.Request without vhost
// importing this package (the method names can't just be Method/Path -
// those are already field names).
func (r *Request) GetMethod() string { return r.Method }
func (r *Request) GetPath() string   { return r.Path }

// GetRemoteAddr and HeaderValue satisfy the small structural
// interfaces middleware uses to stay decoupled from this package's
// concrete Request type.
func (r *Request) GetRemoteAddr() string { return r.RemoteAddr }
func (r *Request) HeaderValue(key string) (string, bool) { return r.Headers.Get(key) }

// ContentLength returns the declared Content-Length, or -1 if absent
// or invalid.
func (r *Request) ContentLength() int64 {
	v, ok := r.Headers.Get("Content-Length")
	if !ok {
		return -1
	}
	n, err := parseNonNegativeInt64(v)
	if err != nil {
		return -1
	}
	return n
}

// IsChunked reports whether the comma-separated Transfer-Encoding list
// names chunked anywhere in it.
func (r *Request) IsChunked() bool {
	te, ok := r.Headers.Get("Transfer-Encoding")
	if !ok {
		return false
	}
	for _, tok := range strings.Split(te, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "chunked") {
			return true
		}
	}
	return false
}

// IsHTTP10 reports whether the request line declared HTTP/1.0.
func (r *Request) IsHTTP10() bool { return r.Version == "HTTP/1.0" }

// IsHTTP11 reports whether the request line declared HTTP/1.1.
func (r *Request) IsHTTP11() bool { return r.Version == "HTTP/1.1" }

// IsHTTP09 reports whether the request line declared HTTP/0.9 (or, in
// practice, omitted a version entirely - callers that synthesize a
// pre-HTTP/1.0 request use this literal version string).
func (r *Request) IsHTTP09() bool { return r.Version == "HTTP/0.9" }

// WantsClose reports whether the Connection header, or the protocol
// version's default, closes the connection after this transaction.
func (r *Request) WantsClose() bool {
	if r.hasConnectionToken("close") {
		return true
	}
	if r.IsHTTP11() {
		return false
	}
	return !r.hasConnectionToken("keep-alive")
}

// WantsKeepAlive is the complement of WantsClose.
func (r *Request) WantsKeepAlive() bool { return !r.WantsClose() }

func (r *Request) hasConnectionToken(tok string) bool {
	v, ok := r.Headers.Get("Connection")
	if !ok {
		return false
	}
	for _, t := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(t), tok) {
			return true
		}
	}
	return false
}

// Host returns the Host header's value with any port suffix stripped,
// or "" if absent.
func (r *Request) Host() string {
	v, ok := r.Headers.Get("Host")
	if !ok {
		return ""
	}
	if i := strings.LastIndexByte(v, ':'); i != -1 && !strings.Contains(v[i:], "]") {
		return v[:i]
	}
	return strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
}

func parseNonNegativeInt64(s string) (int64, error) {
	var n int64
	if s == "" {
		return 0, errEmptyInt
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errEmptyInt
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}
