package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oakhttp/oakhttp/internal/headers"
	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
)

func TestShouldCloseWhenHeadersNeverSent(t *testing.T) {
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	req := newReq("GET", "/")
	assert.True(t, shouldClose(req, resp))
}

func TestShouldCloseOnExplicitConnectionClose(t *testing.T) {
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	resp.Headers.ReplaceFirst("Connection", "close")
	_ = resp.SendHeaders(response.StatusOK, response.Options{Length: 0})
	req := newReq("GET", "/")
	assert.True(t, shouldClose(req, resp))
}

func TestShouldNotCloseOnHTTP11KeepAlive(t *testing.T) {
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.1", "")
	_ = resp.SendHeaders(response.StatusOK, response.Options{Length: 0})
	req := newReq("GET", "/")
	assert.False(t, shouldClose(req, resp))
}

func TestShouldCloseOnHTTP10WithoutKeepAlive(t *testing.T) {
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.0", "")
	_ = resp.SendHeaders(response.StatusOK, response.Options{Length: 0})
	req := &request.Request{Method: "GET", Path: "/", Version: "HTTP/1.0", Headers: headers.New()}
	assert.True(t, shouldClose(req, resp))
}

func TestShouldCloseOnHTTP10EvenWithKeepAliveToken(t *testing.T) {
	var buf bytes.Buffer
	resp := response.New(&buf, false, "HTTP/1.0", "")
	_ = resp.SendHeaders(response.StatusOK, response.Options{Length: 0})
	h := headers.New()
	h.Add("Connection", "keep-alive")
	req := &request.Request{Method: "GET", Path: "/", Version: "HTTP/1.0", Headers: h}
	assert.True(t, shouldClose(req, resp))
}

func TestStripHopByHopHeadersRemovesNamedTokens(t *testing.T) {
	h := headers.New()
	h.Add("Connection", "X-Custom")
	h.Add("X-Custom", "value")
	stripHopByHopHeaders(h)
	_, ok := h.Get("X-Custom")
	assert.False(t, ok)
}

func TestStripHopByHopHeadersKeepsCloseAndKeepAliveTokens(t *testing.T) {
	h := headers.New()
	h.Add("Connection", "keep-alive")
	stripHopByHopHeaders(h)
	v, ok := h.Get("Connection")
	assert.True(t, ok)
	assert.Equal(t, "keep-alive", v)
}
