package server

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
	"github.com/oakhttp/oakhttp/internal/vhost"
)

// Context is the convenience façade handlers registered via
// HandlerFunc receive: the raw Request/Response plus any path
// parameters a router layered on top of dispatch recorded.
type Context struct {
	Request  *request.Request
	Response *response.Response
	Params   map[string]string

	body    []byte
	bodyErr error
	bodyRed bool
}

func newContext(r *request.Request, w *response.Response, params map[string]string) *Context {
	return &Context{Request: r, Response: w, Params: params}
}

func (c *Context) Method() string { return c.Request.Method }
func (c *Context) Path() string   { return c.Request.Path }

func (c *Context) Header(key string) string {
	v, _ := c.Request.Headers.Get(key)
	return v
}

func (c *Context) Param(name string) string { return c.Params[name] }

// Query looks up a single query (or, for urlencoded bodies, form)
// parameter via Request.GetParams.
func (c *Context) Query(key string) string {
	params, err := c.Request.GetParams()
	if err != nil {
		return ""
	}
	for _, p := range params {
		if p.Name == key {
			return p.Value
		}
	}
	return ""
}

// Body reads and caches the full request body. Safe to call more
// than once; only the first call consumes the underlying reader.
func (c *Context) Body() ([]byte, error) {
	if !c.bodyRed {
		c.body, c.bodyErr = io.ReadAll(c.Request.Body)
		c.bodyRed = true
	}
	return c.body, c.bodyErr
}

func (c *Context) BodyString() (string, error) {
	b, err := c.Body()
	return string(b), err
}

func (c *Context) Text(status response.StatusCode, text string) int {
	return c.Send(status, "text/plain; charset=utf-8", []byte(text))
}

func (c *Context) HTML(status response.StatusCode, htmlBody string) int {
	return c.Send(status, "text/html; charset=utf-8", []byte(htmlBody))
}

func (c *Context) JSON(status response.StatusCode, v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return int(response.StatusInternalServerError)
	}
	return c.Send(status, "application/json", data)
}

func (c *Context) Send(status response.StatusCode, contentType string, data []byte) int {
	_ = c.Response.SendHeaders(status, response.Options{Length: int64(len(data)), ContentType: contentType})
	_ = c.Response.SendBody(bytes.NewReader(data), nil)
	return 0
}

func (c *Context) Error(status response.StatusCode, message string) int {
	_ = c.Response.SendError(status, message)
	return 0
}

func (c *Context) Redirect(url string, permanent bool) int {
	_ = c.Response.Redirect(url, permanent)
	return 0
}

func (c *Context) NoContent() int {
	_ = c.Response.SendHeaders(response.StatusNoContent, response.Options{Length: 0})
	return 0
}

// HandlerFunc adapts a Context-based function to vhost.Handler. The
// two type assertions always succeed: dispatch only ever passes the
// concrete *request.Request/*response.Response it built.
type HandlerFunc func(ctx *Context) int

func (f HandlerFunc) Serve(w vhost.ResponseWriter, r vhost.Request) int {
	req := r.(*request.Request)
	resp := w.(*response.Response)
	return f(newContext(req, resp, nil))
}
