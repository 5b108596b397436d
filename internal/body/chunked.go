package body

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oakhttp/oakhttp/internal/headers"
	"github.com/oakhttp/oakhttp/internal/textproto"
)

const (
	maxChunkSizeLine = 1024
	maxTrailerLines  = 100
)

var (
	ErrMalformedChunkSize = errors.New("chunked: malformed chunk size line")
	ErrChunkTruncated     = errors.New("chunked: body truncated before declared size")
)

// ChunkedReader decodes an HTTP/1.1 chunked transfer-coding body
// (spec §4.3): size-prefixed chunks terminated by a zero-size chunk,
// optionally followed by a trailer header block. Trailer headers, once
// read, are merged into target (typically the owning request's header
// collection) the same way repeated header lines are merged.
type ChunkedReader struct {
	br        *bufio.Reader
	target    *headers.Headers
	remaining int64
	eof       bool
}

// NewChunkedReader wraps br. target may be nil if the caller does not
// want trailers merged anywhere.
func NewChunkedReader(br *bufio.Reader, target *headers.Headers) *ChunkedReader {
	return &ChunkedReader{br: br, target: target}
}

func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.eof {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		size, err := c.readSizeLine()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := c.readTrailer(); err != nil {
				return 0, err
			}
			c.eof = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := io.ReadFull(c.br, p)
	c.remaining -= int64(n)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return n, ErrChunkTruncated
		}
		return n, err
	}
	if c.remaining == 0 {
		if err := c.expectCRLF(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *ChunkedReader) readSizeLine() (int64, error) {
	line, err := textproto.ReadToken(c.br, '\n', maxChunkSizeLine, textproto.ISO88591)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedChunkSize, err)
	}
	if semi := strings.IndexByte(line, ';'); semi != -1 {
		line = line[:semi]
	}
	line = strings.TrimSpace(line)
	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedChunkSize, line)
	}
	return size, nil
}

func (c *ChunkedReader) expectCRLF() error {
	var b [2]byte
	if _, err := io.ReadFull(c.br, b[:]); err != nil {
		return ErrChunkTruncated
	}
	if b[0] != '\r' || b[1] != '\n' {
		return errors.New("chunked: missing CRLF after chunk data")
	}
	return nil
}

func (c *ChunkedReader) readTrailer() error {
	trailer := headers.New()
	if err := trailer.ParseFromReader(c.br, maxTrailerLines); err != nil {
		return err
	}
	if c.target != nil {
		trailer.MergeInto(c.target)
	}
	return nil
}

// ChunkedWriter emits an HTTP/1.1 chunked transfer-coding body (spec
// §4.4). Each non-empty Write call becomes one wire chunk; the
// trailing zero-size chunk is emitted by Close or CloseWithTrailer.
// Writing after the trailing chunk has been emitted fails.
type ChunkedWriter struct {
	w      io.Writer
	closed bool
}

func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

func (c *ChunkedWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errors.New("chunked: write after trailing chunk")
	}
	if len(p) == 0 {
		// A zero-length chunk is the terminator; silently dropping
		// empty writes keeps callers from accidentally ending the
		// stream early.
		return 0, nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Close emits the trailing zero-size chunk with no trailers.
func (c *ChunkedWriter) Close() error {
	return c.CloseWithTrailer(nil)
}

// CloseWithTrailer emits the trailing zero-size chunk followed by the
// given trailer headers (if any) and the final blank line.
func (c *ChunkedWriter) CloseWithTrailer(trailer *headers.Headers) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if _, err := io.WriteString(c.w, "0\r\n"); err != nil {
		return err
	}
	if trailer != nil {
		for _, h := range trailer.List() {
			if _, err := fmt.Fprintf(c.w, "%s: %s\r\n", h.Name, h.Value); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(c.w, "\r\n")
	return err
}
