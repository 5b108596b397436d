package staticfiles

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakhttp/oakhttp/internal/headers"
	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newReq(method, path string, h *headers.Headers) *request.Request {
	if h == nil {
		h = headers.New()
	}
	return &request.Request{Method: method, Path: path, Version: "HTTP/1.1", Headers: h, Body: bytes.NewReader(nil)}
}

func TestServeFileSendsBodyAndValidators(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.txt", "hello world")

	h := New(dir)
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	req := newReq("GET", "/hello.txt", nil)

	status := h.Serve(resp, req)
	assert.Equal(t, 0, status)
	assert.Contains(t, buf.String(), "200 OK")
	assert.Contains(t, buf.String(), "hello world")
	assert.Contains(t, buf.String(), "ETag:")
}

func TestServeMissingFileIs404(t *testing.T) {
	dir := t.TempDir()
	h := New(dir)
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	req := newReq("GET", "/nope.txt", nil)

	h.Serve(resp, req)
	assert.Contains(t, buf.String(), "404 Not Found")
}

func TestServeDirectoryWithoutTrailingSlashRedirects(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, dir, "sub/index.html", "<p>index</p>")

	h := New(dir)
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	req := newReq("GET", "/sub", nil)

	h.Serve(resp, req)
	assert.Contains(t, buf.String(), "302 Found")
	assert.Contains(t, buf.String(), "Location: /sub/")
}

func TestServeDirectoryServesIndexFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, dir, "sub/index.html", "<p>index</p>")

	h := New(dir)
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	req := newReq("GET", "/sub/", nil)

	h.Serve(resp, req)
	assert.Contains(t, buf.String(), "200 OK")
	assert.Contains(t, buf.String(), "<p>index</p>")
}

func TestServeIfNoneMatchReturnsNotModified(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "content")

	h := New(dir)

	var first bytes.Buffer
	resp1 := response.New(&first, false, "HTTP/1.1", "")
	h.Serve(resp1, newReq("GET", "/a.txt", nil))

	var etag string
	for _, line := range bytes.Split(first.Bytes(), []byte("\r\n")) {
		if bytes.HasPrefix(line, []byte("ETag: ")) {
			etag = string(line[len("ETag: "):])
		}
	}
	require.NotEmpty(t, etag)

	hdr := headers.New()
	hdr.Add("If-None-Match", etag)
	var second bytes.Buffer
	resp2 := response.New(&second, false, "HTTP/1.1", "")
	h.Serve(resp2, newReq("GET", "/a.txt", hdr))

	assert.Contains(t, second.String(), "304 Not Modified")
}

func TestServeRangeRequestReturnsPartialContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.txt", "0123456789")

	h := New(dir)
	hdr := headers.New()
	hdr.Add("Range", "bytes=2-4")
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	h.Serve(resp, newReq("GET", "/big.txt", hdr))

	assert.Contains(t, buf.String(), "206 Partial Content")
	assert.Contains(t, buf.String(), "Content-Range: bytes 2-4/10")
	assert.Contains(t, buf.String(), "234")
}

func TestServeDotDotCannotEscapeRoot(t *testing.T) {
	dir := t.TempDir()
	h := New(dir)
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	h.Serve(resp, newReq("GET", "/../../etc/passwd", nil))

	assert.Contains(t, buf.String(), "404 Not Found")
}

func TestServeUnsupportedMethodIs405(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x")
	h := New(dir)
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	h.Serve(resp, newReq("POST", "/a.txt", nil))

	assert.Contains(t, buf.String(), "405 Method Not Allowed")
	assert.Contains(t, buf.String(), "Allow: GET, HEAD")
}
