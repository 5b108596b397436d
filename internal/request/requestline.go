package request

import (
	"bufio"
	"errors"
	"strings"

	"github.com/oakhttp/oakhttp/internal/textproto"
)

// Size limits (DoS protection) for the request line.
const (
	maxRequestLineSize = 8192 // 8KB for request line
	maxURILength       = 8192 // Max request-target length
)

var (
	ErrMalformedRequestLine = errors.New("request: malformed request line")
	ErrInvalidMethod        = errors.New("request: invalid HTTP method")
	ErrURITooLong           = errors.New("request: request-target too long")
	ErrUnsupportedVersion   = errors.New("request: unsupported HTTP version")
)

// requestLine is METHOD SP request-target SP HTTP-version CRLF.
type requestLine struct {
	Method  string
	Target  string
	Version string
}

// readRequestLine reads one request line off br, tolerating any number
// of leading empty lines (spurious CRLFs some clients send between
// pipelined requests). The set of accepted methods is deliberately
// open - any token is accepted, since rejecting an unknown method is a
// routing concern handled later, not a parse error.
func readRequestLine(br *bufio.Reader) (requestLine, error) {
	var line string
	for {
		l, err := textproto.ReadToken(br, '\n', maxRequestLineSize, textproto.ISO88591)
		if err != nil {
			if errors.Is(err, textproto.ErrTokenTooLarge) {
				return requestLine{}, ErrMalformedRequestLine
			}
			return requestLine{}, err
		}
		if l == "" {
			continue
		}
		line = l
		break
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return requestLine{}, ErrMalformedRequestLine
	}

	method, target, version := parts[0], parts[1], parts[2]

	if method == "" || !isToken(method) {
		return requestLine{}, ErrInvalidMethod
	}
	if len(target) > maxURILength {
		return requestLine{}, ErrURITooLong
	}
	if !isValidVersion(version) {
		return requestLine{}, ErrUnsupportedVersion
	}

	return requestLine{Method: method, Target: target, Version: version}, nil
}

func isToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 32 || c >= 127 {
			return false
		}
		switch c {
		case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}':
			return false
		}
	}
	return true
}

// isValidVersion accepts any well-formed "HTTP/d.d" token, including
// "HTTP/0.9" - spec §4.11 has a distinct HTTP/1.0-and-older
// preprocessing branch for it, so a 0.9 or other non-1.1 request line
// is not itself malformed; only the server's preprocess step
// (internal/server, Server.preprocess) decides what to do
// with a version it doesn't specifically handle.
func isValidVersion(v string) bool {
	const prefix = "HTTP/"
	if !strings.HasPrefix(v, prefix) {
		return false
	}
	rest := v[len(prefix):]
	major, minor, ok := strings.Cut(rest, ".")
	if !ok || len(major) == 0 || len(minor) == 0 {
		return false
	}
	return isDigits(major) && isDigits(minor)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
