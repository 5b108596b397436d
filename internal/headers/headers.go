// Package headers implements the ordered, case-insensitive header
// multimap used by requests and responses, along with the wire-format
// parsing rules for header blocks (folding, duplicate-name merging)
// described by the HTTP/1.1 control plane.
package headers

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/oakhttp/oakhttp/internal/textproto"
)

var (
	ErrTooManyHeaders    = errors.New("headers: too many header lines")
	ErrMalformedHeader   = errors.New("headers: malformed header line")
	ErrFoldWithoutPrior  = errors.New("headers: folded line with no preceding header")
	ErrInvalidHeaderName = errors.New("headers: invalid header field name")
)

var crlf = []byte("\r\n")

// Headers is an ordered sequence of Header pairs. Iteration order
// always equals insertion order; Get/Contains/ReplaceFirst compare
// names ASCII case-insensitively while preserving the original case
// of every stored name.
type Headers struct {
	list  []Header
	index map[string]int // lowercase name -> index of FIRST occurrence in list
}

// New returns an empty header collection.
func New() *Headers {
	return &Headers{index: make(map[string]int)}
}

func key(name string) string { return strings.ToLower(name) }

// Add appends a new (name, value) pair, even if name already exists.
// Handlers writing responses use this to emit repeated headers (e.g.
// multiple Set-Cookie lines).
func (h *Headers) Add(name, value string) {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return
	}
	if _, ok := h.index[key(name)]; !ok {
		h.index[key(name)] = len(h.list)
	}
	h.list = append(h.list, Header{Name: name, Value: value})
}

// mergeOrAdd implements the wire-parsing rule from spec §4.3/§4.6: a
// repeated header name (not a folded continuation) is concatenated
// onto the first occurrence's value with ", ", rather than appended as
// a new entry.
func (h *Headers) mergeOrAdd(name, value string) {
	if i, ok := h.index[key(name)]; ok {
		h.list[i].Value = h.list[i].Value + ", " + value
		return
	}
	h.Add(name, value)
}

// Contains reports whether any entry has the given name.
func (h *Headers) Contains(name string) bool {
	_, ok := h.index[key(name)]
	return ok
}

// Get returns the value of the first entry with the given name.
func (h *Headers) Get(name string) (string, bool) {
	if i, ok := h.index[key(name)]; ok {
		return h.list[i].Value, true
	}
	return "", false
}

// GetAll returns the values of every entry with the given name, in
// insertion order.
func (h *Headers) GetAll(name string) []string {
	var out []string
	k := key(name)
	for _, hd := range h.list {
		if key(hd.Name) == k {
			out = append(out, hd.Value)
		}
	}
	return out
}

// List returns every header pair in insertion order. The returned
// slice is owned by the caller.
func (h *Headers) List() []Header {
	out := make([]Header, len(h.list))
	copy(out, h.list)
	return out
}

// RemoveAll deletes every entry with the given name.
func (h *Headers) RemoveAll(name string) {
	k := key(name)
	out := h.list[:0]
	for _, hd := range h.list {
		if key(hd.Name) != k {
			out = append(out, hd)
		}
	}
	h.list = out
	h.reindex()
}

func (h *Headers) reindex() {
	h.index = make(map[string]int, len(h.list))
	for i, hd := range h.list {
		if _, ok := h.index[key(hd.Name)]; !ok {
			h.index[key(hd.Name)] = i
		}
	}
}

// ReplaceFirst replaces the value of the first entry with the given
// name, returning its previous value. If no such entry exists, a new
// one is appended and ("", false) is returned.
func (h *Headers) ReplaceFirst(name, value string) (prev string, existed bool) {
	if i, ok := h.index[key(name)]; ok {
		prev = h.list[i].Value
		h.list[i].Value = strings.TrimSpace(value)
		return prev, true
	}
	h.Add(name, value)
	return "", false
}

// GetDate parses the value of the first entry with the given name as
// an HTTP date (RFC 1123, RFC 850, or ANSI asctime, first match wins).
func (h *Headers) GetDate(name string) (time.Time, bool) {
	v, ok := h.Get(name)
	if !ok {
		return time.Time{}, false
	}
	t, err := textproto.ParseDate(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetDate sets name to t formatted per RFC 1123, replacing any prior
// value.
func (h *Headers) SetDate(name string, t time.Time) {
	h.ReplaceFirst(name, textproto.FormatDate(t))
}

// Len reports the number of stored header pairs.
func (h *Headers) Len() int { return len(h.list) }

// Param is one entry of an ordered parameter list produced by
// ParseParams.
type Param struct {
	Key   string
	Value string
}

// Params is the ordered result of splitting a header value of the
// form `v; k1=v1; k2="v2"`. Its first entry's Key is the bare header
// value itself (with an empty Value), matching spec §3.
type Params []Param

// Get returns the value of the first entry with the given key
// (case-insensitive), and whether it was present.
func (p Params) Get(k string) (string, bool) {
	for _, e := range p {
		if equalFold(e.Key, k) {
			return e.Value, true
		}
	}
	return "", false
}

// ParseParams splits a header value of the form `v; k1=v1; k2="v2"`
// into an ordered Params list whose first entry is {Key: v, Value: ""}.
func ParseParams(value string) Params {
	parts := strings.Split(value, ";")
	out := make(Params, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i == 0 {
			out = append(out, Param{Key: p})
			continue
		}
		eq := strings.IndexByte(p, '=')
		if eq == -1 {
			out = append(out, Param{Key: p})
			continue
		}
		k := strings.TrimSpace(p[:eq])
		v := strings.TrimSpace(p[eq+1:])
		v = strings.Trim(v, `"`)
		out = append(out, Param{Key: k, Value: v})
	}
	return out
}

// ParseParams returns the ordered parameter list for the first value
// of name, e.g. Content-Type's `text/html; charset=utf-8`.
func (h *Headers) ParseParams(name string) (Params, bool) {
	v, ok := h.Get(name)
	if !ok {
		return nil, false
	}
	return ParseParams(v), true
}

// Parse reads a header block (everything up to and including the
// terminating blank line) out of data, folding continuation lines and
// merging repeated header names per spec §4.6 step 2. It returns the
// number of bytes consumed, whether the terminating blank line was
// seen, and any parse error. When the blank line has not yet appeared
// in data, done is false and the caller must supply more bytes
// appended after consumed.
func (h *Headers) Parse(data []byte, maxLines int) (consumed int, done bool, err error) {
	read := 0
	lines := 0
	lastName := ""

	for {
		idx := bytes.Index(data[read:], crlf)
		if idx == -1 {
			break
		}
		line := data[read : read+idx]
		read += idx + 2

		if len(line) == 0 {
			done = true
			break
		}

		if line[0] == ' ' || line[0] == '\t' {
			if lastName == "" {
				return read, false, ErrFoldWithoutPrior
			}
			cont := strings.TrimSpace(string(line))
			if i, ok := h.index[key(lastName)]; ok {
				h.list[i].Value = h.list[i].Value + " " + cont
			}
			continue
		}

		lines++
		if lines > maxLines {
			return read, false, ErrTooManyHeaders
		}

		name, value, perr := splitHeaderLine(line)
		if perr != nil {
			return read, false, perr
		}
		h.mergeOrAdd(name, value)
		lastName = name
	}

	return read, done, nil
}

// MergeInto applies every entry of h onto target using the same
// repeated-name-concatenation rule the wire parser uses (spec §4.3's
// trailer-merge behavior), in h's insertion order.
func (h *Headers) MergeInto(target *Headers) {
	for _, hd := range h.list {
		target.mergeOrAdd(hd.Name, hd.Value)
	}
}

// maxHeaderBlockBytes bounds ParseFromReader against a client that
// never terminates a header line, mirroring the byte-slice Parse's
// maxLines guard but for the streaming case.
const maxHeaderBlockBytes = 1 << 20

// ParseFromReader reads a full header block (request headers, or a
// multipart part's/chunked trailer's headers) line by line from br
// until the terminating blank line, then parses it with Parse. It
// exists because the request parser and the chunked/multipart codecs
// consume headers directly off a *bufio.Reader rather than from an
// already-buffered byte slice.
func (h *Headers) ParseFromReader(br *bufio.Reader, maxLines int) error {
	var buf []byte
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		if len(buf) > maxHeaderBlockBytes {
			return ErrTooManyHeaders
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	_, _, err := h.Parse(buf, maxLines)
	return err
}

func splitHeaderLine(line []byte) (name, value string, err error) {
	colon := bytes.IndexByte(line, ':')
	if colon == -1 {
		return "", "", fmt.Errorf("%w: no colon", ErrMalformedHeader)
	}
	rawName := string(line[:colon])
	if strings.ContainsAny(rawName, " \t") {
		return "", "", fmt.Errorf("%w: whitespace in name", ErrMalformedHeader)
	}
	if !httpguts.ValidHeaderFieldName(rawName) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidHeaderName, rawName)
	}
	val := strings.TrimSpace(string(line[colon+1:]))
	if !httpguts.ValidHeaderFieldValue(val) {
		return "", "", fmt.Errorf("%w: invalid value for %q", ErrMalformedHeader, rawName)
	}
	return rawName, val, nil
}
