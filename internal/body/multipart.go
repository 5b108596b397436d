package body

import (
	"bufio"
	"errors"
	"io"

	"github.com/oakhttp/oakhttp/internal/headers"
)

const maxPartHeaderLines = 100

var (
	ErrBoundaryLength = errors.New("multipart: boundary must be 1-70 bytes")
	ErrMissingBoundary = errors.New("multipart: end of stream before boundary")
)

// MultipartReader iterates the parts of a multipart/* body (spec
// §4.5): each part is separated by "CRLF--boundary" and the body is
// terminated by "CRLF--boundary--". Read on the reader returned by
// NextPart yields io.EOF at the end of that part's data, not at the
// end of the underlying stream.
type MultipartReader struct {
	br            *bufio.Reader
	boundary      []byte // "\r\n--" + boundary, used for every boundary after the first
	firstBoundary []byte // "--" + boundary, the first boundary may omit the leading CRLF
	started       bool
	lastBoundary  bool
	partEOF       bool
	pending       []byte
}

// NewMultipartReader validates boundary (1-70 bytes per spec §4.5) and
// returns a reader ready to iterate parts via NextPart.
func NewMultipartReader(r io.Reader, boundary string) (*MultipartReader, error) {
	if len(boundary) < 1 || len(boundary) > 70 {
		return nil, ErrBoundaryLength
	}
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 4096)
	}
	return &MultipartReader{
		br:            br,
		boundary:      append([]byte("\r\n--"), boundary...),
		firstBoundary: append([]byte("--"), boundary...),
	}, nil
}

// Part is one part of a multipart body: its own header collection plus
// an io.Reader over just that part's data.
type Part struct {
	Headers *headers.Headers
	owner   *MultipartReader
}

func (p *Part) Read(b []byte) (int, error) { return p.owner.Read(b) }

// Name returns the "name" parameter of Content-Disposition, if any.
func (p *Part) Name() string {
	return p.dispositionParam("name")
}

// FileName returns the "filename" parameter of Content-Disposition, if any.
func (p *Part) FileName() string {
	return p.dispositionParam("filename")
}

func (p *Part) dispositionParam(key string) string {
	params, ok := p.Headers.ParseParams("Content-Disposition")
	if !ok {
		return ""
	}
	v, _ := params.Get(key)
	return v
}

// NextPart advances past any unread bytes of the current part, then
// returns the next part's headers, or io.EOF once the terminating
// boundary has been crossed.
func (m *MultipartReader) NextPart() (*Part, error) {
	if m.lastBoundary {
		return nil, io.EOF
	}
	if m.started {
		if err := m.skipCurrentPart(); err != nil {
			return nil, err
		}
	} else {
		m.started = true
		if err := m.scanTo(m.firstBoundary); err != nil {
			return nil, err
		}
	}
	m.partEOF = false
	m.pending = nil

	two, err := m.br.Peek(2)
	if err == nil && two[0] == '-' && two[1] == '-' {
		m.br.Discard(2)
		m.lastBoundary = true
		m.skipTrailerBestEffort()
		return nil, io.EOF
	}

	if err := m.skipBoundaryTrailer(); err != nil {
		return nil, err
	}

	h := headers.New()
	if err := h.ParseFromReader(m.br, maxPartHeaderLines); err != nil {
		return nil, err
	}
	return &Part{Headers: h, owner: m}, nil
}

// EpilogueReader returns a reader over the remaining raw bytes
// following the terminating boundary (the epilogue, per spec §4.5).
// Valid only after NextPart has returned io.EOF.
func (m *MultipartReader) EpilogueReader() io.Reader {
	return m.br
}

// scanTo discards bytes until needle is found, consuming it too. Used
// only for the very first boundary, where any preamble bytes before it
// are discarded.
func (m *MultipartReader) scanTo(needle []byte) error {
	matched := 0
	for {
		b, err := m.br.ReadByte()
		if err != nil {
			return ErrMissingBoundary
		}
		if b == needle[matched] {
			matched++
			if matched == len(needle) {
				return nil
			}
			continue
		}
		if b == needle[0] {
			matched = 1
		} else {
			matched = 0
		}
	}
}

// skipBoundaryTrailer consumes the linear whitespace and CRLF that
// follow a boundary line before the part's headers begin.
func (m *MultipartReader) skipBoundaryTrailer() error {
	for {
		b, err := m.br.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case b == ' ' || b == '\t':
			continue
		case b == '\r':
			nxt, err := m.br.ReadByte()
			if err != nil {
				return err
			}
			if nxt != '\n' {
				return errors.New("multipart: malformed boundary line")
			}
			return nil
		case b == '\n':
			return nil
		default:
			return errors.New("multipart: malformed boundary line")
		}
	}
}

// skipTrailerBestEffort consumes whitespace/CRLF after the terminating
// boundary. Per spec §4.5 the final boundary may lack a trailing CRLF
// if immediately followed by end-of-stream, so errors here are ignored.
func (m *MultipartReader) skipTrailerBestEffort() {
	for {
		b, err := m.br.ReadByte()
		if err != nil {
			return
		}
		if b == ' ' || b == '\t' {
			continue
		}
		if b == '\r' {
			m.br.ReadByte() // consume \n, best effort
			return
		}
		if b == '\n' {
			return
		}
		m.br.UnreadByte()
		return
	}
}

func (m *MultipartReader) skipCurrentPart() error {
	buf := make([]byte, 4096)
	for {
		_, err := m.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Read implements io.Reader for the current part's data, returning
// io.EOF once the boundary that terminates this part has been found
// (not when the underlying stream ends).
func (m *MultipartReader) Read(p []byte) (int, error) {
	if m.partEOF && len(m.pending) == 0 {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		if len(m.pending) == 0 {
			if m.partEOF {
				break
			}
			if err := m.fillPending(); err != nil {
				return total, err
			}
			if len(m.pending) == 0 && m.partEOF {
				break
			}
			if len(m.pending) == 0 {
				continue
			}
		}
		n := copy(p[total:], m.pending)
		m.pending = m.pending[n:]
		total += n
	}
	if total == 0 && m.partEOF {
		return 0, io.EOF
	}
	return total, nil
}

// fillPending scans forward for the boundary, naive-restart matching
// (adequate for real-world boundary strings, which are chosen to be
// unlikely to recur in body data). On a partial (non-matching) run it
// stashes the proven-data bytes in m.pending for Read to drain; on a
// full match it sets m.partEOF.
func (m *MultipartReader) fillPending() error {
	matched := 0
	probe := make([]byte, 0, len(m.boundary))
	for matched < len(m.boundary) {
		b, err := m.br.ReadByte()
		if err != nil {
			if len(probe) > 0 {
				m.pending = append(m.pending, probe...)
				return nil
			}
			return ErrMissingBoundary
		}
		if b == m.boundary[matched] {
			probe = append(probe, b)
			matched++
			continue
		}
		probe = append(probe, b)
		m.pending = append(m.pending, probe...)
		return nil
	}
	m.partEOF = true
	return nil
}
