// Package response implements the HTTP/1.1 response writer: status
// line and header emission, body framing (fixed-length, chunked,
// compressed, close-delimited), and the higher-level send/sendError/
// redirect helpers handlers use.
package response

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/oakhttp/oakhttp/internal/body"
	"github.com/oakhttp/oakhttp/internal/condition"
	"github.com/oakhttp/oakhttp/internal/headers"
)

const serverName = "oakhttp"

var ErrHeadersNotSent = errors.New("response: body write before headers sent")

// Options carries the per-response metadata SendHeaders needs: the
// total resource length (-1 if unknown ahead of time), validators,
// content type, and an optional byte range already resolved by the
// caller (internal/condition.ParseRange).
type Options struct {
	Length       int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Range        *condition.Range
}

// Response is created once per transaction, written to by exactly one
// handler, and closed by the connection loop.
type Response struct {
	w       io.Writer
	Headers *headers.Headers

	discardBody    bool
	acceptsGzip    bool
	acceptsDeflate bool
	acceptsChunked bool

	status      StatusCode
	headersSent bool
	closed      bool

	bodySink    io.Writer
	chunkedW    *body.ChunkedWriter
	compressedW io.WriteCloser
}

// New creates a Response writing to w. discardBody is set for HEAD
// requests (the dispatcher is responsible for passing that in);
// acceptsChunked is true only for HTTP/1.1 clients.
func New(w io.Writer, discardBody bool, httpVersion, acceptEncoding string) *Response {
	gzipOK, deflateOK := parseAcceptEncoding(acceptEncoding)
	return &Response{
		w:              w,
		Headers:        headers.New(),
		discardBody:    discardBody,
		acceptsGzip:    gzipOK,
		acceptsDeflate: deflateOK,
		acceptsChunked: httpVersion == "HTTP/1.1",
		status:         StatusOK,
	}
}

// HeadersSent reports whether SendHeaders has already run.
func (r *Response) HeadersSent() bool { return r.headersSent }

// Status returns the status last passed to SendHeaders.
func (r *Response) Status() StatusCode { return r.status }

// SendInterim writes a 1xx informational response (Expect:
// 100-continue's "100 Continue") with no headers and no body. It does
// not mark headers as sent - the real status line follows once the
// handler produces one.
func (r *Response) SendInterim(status StatusCode) error {
	_, err := fmt.Fprintf(r.w, "HTTP/1.1 %d %s\r\n\r\n", status, StatusText(status))
	return err
}

// SendHeaders emits the status line and header block. It is
// idempotent: a second call is a no-op. When opts.Range is set, the
// status is forced to 206 and Content-Range/Content-Length are
// derived from it (opts.Length supplies the range's "/total"). When
// the response is compressible and the client accepts gzip/deflate,
// the body is wrapped with the chosen compressor and, since the
// compressed length isn't known in advance, framed with chunked
// transfer-coding (or close-delimited for HTTP/1.0 clients) instead of
// Content-Length.
func (r *Response) SendHeaders(status StatusCode, opts Options) error {
	if r.headersSent {
		return nil
	}

	if !opts.LastModified.IsZero() {
		r.Headers.SetDate("Last-Modified", opts.LastModified)
	}
	if opts.ETag != "" {
		r.Headers.ReplaceFirst("ETag", opts.ETag)
	}
	if opts.ContentType != "" {
		r.Headers.ReplaceFirst("Content-Type", opts.ContentType)
	}
	r.Headers.SetDate("Date", time.Now())
	r.Headers.ReplaceFirst("Server", serverName)

	wantsCompress := opts.Range == nil &&
		opts.ContentType != "" &&
		compressible(opts.ContentType) &&
		(r.acceptsGzip || r.acceptsDeflate)

	switch {
	case opts.Range != nil:
		status = StatusPartialContent
		length := opts.Range.End - opts.Range.Start + 1
		r.Headers.ReplaceFirst("Content-Range", fmt.Sprintf("bytes %d-%d/%d", opts.Range.Start, opts.Range.End, opts.Length))
		r.Headers.ReplaceFirst("Content-Length", strconv.FormatInt(length, 10))
		r.bodySink = r.w

	case wantsCompress:
		var target io.Writer = r.w
		if r.acceptsChunked {
			r.Headers.ReplaceFirst("Transfer-Encoding", "chunked")
			r.chunkedW = body.NewChunkedWriter(r.w)
			target = r.chunkedW
		} else {
			r.Headers.ReplaceFirst("Connection", "close")
		}
		cw, name := compressWriter(target, r.acceptsGzip, r.acceptsDeflate)
		r.Headers.ReplaceFirst("Content-Encoding", name)
		r.Headers.Add("Vary", "Accept-Encoding")
		r.compressedW = cw
		r.bodySink = cw

	case opts.Length >= 0:
		r.Headers.ReplaceFirst("Content-Length", strconv.FormatInt(opts.Length, 10))
		r.bodySink = r.w

	default:
		if r.acceptsChunked {
			r.Headers.ReplaceFirst("Transfer-Encoding", "chunked")
			r.chunkedW = body.NewChunkedWriter(r.w)
			r.bodySink = r.chunkedW
		} else {
			r.Headers.ReplaceFirst("Connection", "close")
			r.bodySink = r.w
		}
	}

	r.status = status
	if err := r.writeStatusLine(status); err != nil {
		return err
	}
	if err := r.writeHeaderBlock(); err != nil {
		return err
	}
	r.headersSent = true
	return nil
}

func (r *Response) writeStatusLine(status StatusCode) error {
	_, err := fmt.Fprintf(r.w, "HTTP/1.1 %d %s\r\n", status, StatusText(status))
	return err
}

func (r *Response) writeHeaderBlock() error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, h := range r.Headers.List() {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")

	_, err := r.w.Write(buf.Bytes())
	return err
}

// SendBody streams in to the (possibly wrapped) body sink. It is
// suppressed when discardBody was set at construction (HEAD). rng, if
// non-nil, must match the range passed to the preceding SendHeaders
// call; bytes of in before rng.Start are discarded, then exactly
// rng.End-rng.Start+1 bytes are copied.
func (r *Response) SendBody(in io.Reader, rng *condition.Range) error {
	if !r.headersSent {
		return ErrHeadersNotSent
	}
	if r.discardBody {
		return nil
	}
	if rng != nil {
		if rng.Start > 0 {
			if _, err := io.CopyN(io.Discard, in, rng.Start); err != nil {
				return err
			}
		}
		_, err := io.CopyN(r.bodySink, in, rng.End-rng.Start+1)
		return err
	}
	_, err := io.Copy(r.bodySink, in)
	return err
}

// Send is shorthand for a complete text/html response.
func (r *Response) Send(status StatusCode, text string) error {
	data := []byte(text)
	if err := r.SendHeaders(status, Options{Length: int64(len(data)), ContentType: "text/html; charset=utf-8"}); err != nil {
		return err
	}
	return r.SendBody(bytes.NewReader(data), nil)
}

const errorBodyTemplate = `<html><head><title>%[1]d %[2]s</title></head>` +
	`<body><h1>%[1]d %[2]s</h1><p>%[3]s</p><hr><a href="/">/</a></body></html>`

// SendError renders a default HTML error body with escaped text and
// sets Connection: close for 4xx/5xx status codes.
func (r *Response) SendError(status StatusCode, text string) error {
	if text == "" {
		text = StatusText(status)
	}
	body := fmt.Sprintf(errorBodyTemplate, int(status), StatusText(status), html.EscapeString(text))
	if status >= 400 {
		r.Headers.ReplaceFirst("Connection", "close")
	}
	if err := r.SendHeaders(status, Options{Length: int64(len(body)), ContentType: "text/html; charset=utf-8"}); err != nil {
		return err
	}
	return r.SendBody(strings.NewReader(body), nil)
}

// Redirect sends a 301 (permanent) or 302 with a Location header and
// an empty body.
func (r *Response) Redirect(url string, permanent bool) error {
	status := StatusFound
	if permanent {
		status = StatusMovedPermanently
	}
	r.Headers.ReplaceFirst("Location", url)
	if err := r.SendHeaders(status, Options{Length: 0}); err != nil {
		return err
	}
	return r.SendBody(bytes.NewReader(nil), nil)
}

// Close finishes the body sink (flushing the compressor, then the
// trailing chunk if chunked) without closing the underlying
// connection. Calling Close more than once is a no-op.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.compressedW != nil {
		if err := r.compressedW.Close(); err != nil {
			return err
		}
	}
	if r.chunkedW != nil {
		return r.chunkedW.Close()
	}
	return nil
}
