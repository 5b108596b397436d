// Package textproto holds the small byte/string utilities shared by
// the request parser and response writer: a bounded delimiter
// terminated token reader, HTTP date formatting/parsing, URL decoding,
// and human-readable byte sizes.
package textproto

import (
	"bufio"
	"errors"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// Charset selects how raw bytes read by ReadToken are decoded into a
// Go string. The control plane (request line, header lines) is
// ISO-8859-1; form bodies are UTF-8.
type Charset int

const (
	ISO88591 Charset = iota
	UTF8
)

var (
	ErrTokenTooLarge = errors.New("textproto: token too large")
	ErrNoDelimiter   = errors.New("textproto: stream ended before delimiter")
)

// NoDelimiter is the internal delimiter value for an any-byte
// terminated read, where the token runs until end-of-stream rather
// than a specific byte. ReadToken takes a byte and cannot receive it;
// ReadTokenAny performs that read.
const NoDelimiter = -1

// ReadToken reads bytes from r until delim is seen. Accumulating more
// than max bytes fails with ErrTokenTooLarge. Reaching EOF before delim
// fails with ErrNoDelimiter. If delim is '\n' and
// the preceding byte is '\r', the '\r' is stripped from the result.
// The returned bytes are decoded using cs.
func ReadToken(r *bufio.Reader, delim byte, max int, cs Charset) (string, error) {
	return readToken(r, int(delim), false, max, cs)
}

// ReadTokenAny reads until end-of-stream (any-byte terminated), up to
// max bytes, decoding with cs.
func ReadTokenAny(r *bufio.Reader, max int, cs Charset) (string, error) {
	return readToken(r, 0, true, max, cs)
}

func readToken(r *bufio.Reader, delim int, anyByte bool, max int, cs Charset) (string, error) {
	buf := make([]byte, 0, 64)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if anyByte {
					return decode(stripCR(buf, byte(delim)), cs), nil
				}
				return "", ErrNoDelimiter
			}
			return "", err
		}
		if !anyByte && b == byte(delim) {
			return decode(stripCR(buf, byte(delim)), cs), nil
		}
		buf = append(buf, b)
		if len(buf) > max {
			return "", ErrTokenTooLarge
		}
	}
}

func stripCR(buf []byte, delim byte) []byte {
	if delim == '\n' && len(buf) > 0 && buf[len(buf)-1] == '\r' {
		return buf[:len(buf)-1]
	}
	return buf
}

func decode(b []byte, cs Charset) string {
	if cs == UTF8 {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
