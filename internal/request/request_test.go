package request

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, data string) *Request {
	t.Helper()
	req, err := Parse(bufio.NewReader(strings.NewReader(data)), Limits{}, "203.0.113.1:9000", "127.0.0.1:8080", false)
	require.NoError(t, err)
	return req
}

func TestSimpleGETRequest(t *testing.T) {
	req := parse(t, "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Version)

	host, ok := req.Headers.Get("host")
	assert.True(t, ok)
	assert.Equal(t, "example.com", host)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Len(t, body, 0)
}

func TestPOSTWithContentLength(t *testing.T) {
	data := "POST /api/data HTTP/1.1\r\n" +
		"Host: api.example.com\r\n" +
		"Content-Length: 13\r\n" +
		"\r\n" +
		"Hello, World!"

	req := parse(t, data)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/api/data", req.Path)
	assert.Equal(t, int64(13), req.ContentLength())

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(body))
}

func TestChunkedTransferEncoding(t *testing.T) {
	data := "POST /upload HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"5\r\n" +
		"Hello\r\n" +
		"7\r\n" +
		", World\r\n" +
		"0\r\n" +
		"\r\n"

	req := parse(t, data)

	assert.Equal(t, "POST", req.Method)
	assert.True(t, req.IsChunked())

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World", string(body))
}

func TestHTTP10Request(t *testing.T) {
	req := parse(t, "GET / HTTP/1.0\r\nHost: old.com\r\n\r\n")

	assert.True(t, req.IsHTTP10())
	assert.False(t, req.IsHTTP11())
	assert.True(t, req.WantsClose())
}

func TestConnectionClose(t *testing.T) {
	req := parse(t, "GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")

	assert.True(t, req.WantsClose())
	assert.False(t, req.WantsKeepAlive())
}

func TestConnectionKeepAlive(t *testing.T) {
	req := parse(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	assert.False(t, req.WantsClose())
	assert.True(t, req.WantsKeepAlive())
}

func TestMalformedRequestLine(t *testing.T) {
	_, err := Parse(bufio.NewReader(strings.NewReader("GET /path\r\nHost: example.com\r\n\r\n")), Limits{}, "", "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRequestLine)
}

func TestWellFormedNonStandardVersionParses(t *testing.T) {
	// Any well-formed HTTP/d.d token parses - rejecting HTTP/1.1-or-1.0
	// alternatives is a dispatch-time concern (preprocess), not a parse
	// error, so the request line itself is not malformed.
	req := parse(t, "GET / HTTP/2.0\r\nHost: example.com\r\n\r\n")
	assert.Equal(t, "HTTP/2.0", req.Version)
}

func TestHTTP09VersionParses(t *testing.T) {
	req := parse(t, "GET / HTTP/0.9\r\n\r\n")
	assert.True(t, req.IsHTTP09())
}

func TestMalformedVersionToken(t *testing.T) {
	_, err := Parse(bufio.NewReader(strings.NewReader("GET / HTTP/x.y\r\nHost: example.com\r\n\r\n")), Limits{}, "", "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestLeadingBlankLines(t *testing.T) {
	req := parse(t, "\r\n\r\nGET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/", req.Path)
}

func TestCollapsesDuplicateSlashes(t *testing.T) {
	req := parse(t, "GET //a///b HTTP/1.1\r\nHost: h\r\n\r\n")
	assert.Equal(t, "/a/b", req.Path)
}

func TestMultipleMethods(t *testing.T) {
	methods := []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

	for _, method := range methods {
		req := parse(t, method+" / HTTP/1.1\r\nHost: example.com\r\n\r\n")
		assert.Equal(t, method, req.Method)
	}
}

func TestOptionsAsterisk(t *testing.T) {
	req := parse(t, "OPTIONS * HTTP/1.1\r\nHost: example.com\r\n\r\n")
	assert.Equal(t, "OPTIONS", req.Method)
	assert.Equal(t, "*", req.Path)
}

func TestChunkedWithTrailers(t *testing.T) {
	data := "POST / HTTP/1.1\r\n" +
		"Host: h\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"5\r\n" +
		"Hello\r\n" +
		"0\r\n" +
		"X-Checksum: abc123\r\n" +
		"\r\n"

	req := parse(t, data)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(body))

	v, ok := req.Headers.Get("X-Checksum")
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func TestUnexpectedEOF(t *testing.T) {
	data := "POST / HTTP/1.1\r\n" +
		"Host: h\r\n" +
		"Content-Length: 100\r\n" +
		"\r\n" +
		"0123456789"

	req := parse(t, data)
	_, err := io.ReadAll(req.Body)
	require.Error(t, err)
}

func TestGetParamsFromQuery(t *testing.T) {
	req := parse(t, "GET /search?a=1&b=2 HTTP/1.1\r\nHost: h\r\n\r\n")

	params, err := req.GetParams()
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0].Name)
	assert.Equal(t, "1", params[0].Value)
	assert.Equal(t, "b", params[1].Name)
	assert.Equal(t, "2", params[1].Value)
}

func TestGetParamsFromBody(t *testing.T) {
	data := "POST /f HTTP/1.1\r\n" +
		"Host: h\r\n" +
		"Content-Length: 7\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"\r\n" +
		"a=1&b=2"

	req := parse(t, data)

	m, err := req.ParamsMap()
	require.NoError(t, err)
	assert.Equal(t, "1", m["a"])
	assert.Equal(t, "2", m["b"])
}

func TestHostStripsPort(t *testing.T) {
	req := parse(t, "GET / HTTP/1.1\r\nHost: example.com:8080\r\n\r\n")
	assert.Equal(t, "example.com", req.Host())
}
