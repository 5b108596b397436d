package request

import (
	"bufio"
	"errors"
	"strings"

	"github.com/oakhttp/oakhttp/internal/body"
	"github.com/oakhttp/oakhttp/internal/headers"
)

// Header block limits (spec §4.6 step 2 and §7 resource-exceeded ->
// 400 taxonomy).
const maxHeaderLines = 100

var ErrMissingRequestLine = errors.New("request: connection closed before a request line arrived")

// Limits bounds the resources a single Parse call may consume; zero
// values fall back to the spec's defaults.
type Limits struct {
	MaxHeaderLines int
}

// Parse reads one HTTP/1.1 request off br: the request line (§4.6
// step 1, tolerating leading blank lines and collapsing duplicate
// slashes in the path), the header block (§4.6 step 2), then selects
// the body framing (§4.6 step 3). remoteAddr/localAddr/secure
// populate the corresponding Request fields verbatim for later use by
// GetBaseURL and logging.
func Parse(br *bufio.Reader, limits Limits, remoteAddr, localAddr string, secure bool) (*Request, error) {
	maxLines := limits.MaxHeaderLines
	if maxLines <= 0 {
		maxLines = maxHeaderLines
	}

	if _, err := br.Peek(1); err != nil {
		return nil, ErrMissingRequestLine
	}

	rl, err := readRequestLine(br)
	if err != nil {
		return nil, err
	}

	h := headers.New()
	if err := h.ParseFromReader(br, maxLines); err != nil {
		return nil, err
	}

	path, query := splitTarget(rl.Target)

	req := &Request{
		Method:     rl.Method,
		Target:     rl.Target,
		Path:       collapseSlashes(path),
		RawQuery:   query,
		Version:    rl.Version,
		Headers:    h,
		RemoteAddr: remoteAddr,
		LocalAddr:  localAddr,
		Secure:     secure,
	}
	req.Body = framedBody(br, req)
	return req, nil
}

// splitTarget divides a request-target into its path and query
// components; only origin-form targets are handled specially, other
// forms (authority-form, asterisk-form) pass through as the path
// verbatim.
func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i != -1 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

func collapseSlashes(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// framedBody selects the body framing per spec §4.6 step 3: chunked
// if Transfer-Encoding names it, close-delimited if Transfer-Encoding
// is present but non-identity without chunked, otherwise
// Content-Length (zero if missing) via a limited reader.
func framedBody(br *bufio.Reader, req *Request) BodyReader {
	if te, ok := req.Headers.Get("Transfer-Encoding"); ok && !isIdentity(te) {
		if req.IsChunked() {
			return body.NewChunkedReader(br, req.Headers)
		}
		return body.NewLimitedReader(br, -1, true)
	}
	cl := req.ContentLength()
	if cl < 0 {
		cl = 0
	}
	return body.NewLimitedReader(br, cl, false)
}

func isIdentity(te string) bool {
	toks := strings.Split(te, ",")
	return len(toks) == 1 && strings.EqualFold(strings.TrimSpace(toks[0]), "identity")
}
