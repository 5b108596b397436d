package server

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
	"github.com/oakhttp/oakhttp/internal/vhost"
)

// builtinMethods are always allowed at any context, regardless of
// what handlers are registered there (spec §4.10 step 4).
var builtinMethods = []string{"GET", "HEAD", "TRACE", "OPTIONS"}

// dispatch implements spec §4.10 against an already-resolved host and
// context: invoke a registered handler, or apply one of the built-in
// GET/HEAD/TRACE/OPTIONS behaviors, or fail with 405/501.
func dispatch(host *vhost.VirtualHost, ctx *vhost.ContextInfo, req *request.Request, resp *response.Response) {
	method := req.Method

	if h, ok := ctx.Handler(method); ok || method == "GET" {
		if !ok {
			sendDefaultError(resp, response.StatusNotFound)
			return
		}
		invoke(host, h, req, resp)
		return
	}

	if method == "HEAD" {
		if h, ok := ctx.Handler("GET"); ok {
			invoke(host, h, req, resp)
			return
		}
		sendDefaultError(resp, response.StatusNotFound)
		return
	}

	if method == "TRACE" {
		serveTrace(req, resp)
		return
	}

	allowed := allowedMethods(host, ctx, req.Path == "*")
	resp.Headers.ReplaceFirst("Allow", strings.Join(allowed, ", "))

	if method == "OPTIONS" {
		_ = resp.SendHeaders(response.StatusOK, response.Options{Length: 0})
		return
	}

	if hostSupports(host, method) {
		_ = resp.SendError(response.StatusMethodNotAllowed, "")
		return
	}

	_ = resp.SendError(response.StatusNotImplemented, "")
}

// invoke calls h for req. When the path ends in "/" and host has a
// directory-index file (spec §4.10's directory-index step), h is first
// called with the path rewritten to path+index; the original path is
// then restored, and h is called on it only if that first call
// returned 404 - matching the original's NetUtils.serve, which
// tries the index path first and only falls through to the plain path
// when that attempt itself came back 404. A non-zero return from
// whichever call settles it sends a default error response with that
// status, unless the handler already sent headers.
func invoke(host *vhost.VirtualHost, h vhost.Handler, req *request.Request, resp *response.Response) {
	status := 404
	path := req.Path

	if strings.HasSuffix(path, "/") && host.DirectoryIndex != "" {
		req.SetPath(path + host.DirectoryIndex)
		status = h.Serve(resp, req)
		req.SetPath(path)
	}

	if status == 404 {
		status = h.Serve(resp, req)
	}

	if status != 0 && !resp.HeadersSent() {
		sendDefaultError(resp, response.StatusCode(status))
	}
}

func sendDefaultError(resp *response.Response, status response.StatusCode) {
	_ = resp.SendError(status, "")
}

func serveTrace(req *request.Request, resp *response.Response) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s\r\n", req.Method, req.Target, req.Version)
	for _, h := range req.Headers.List() {
		fmt.Fprintf(&sb, "%s: %s\r\n", h.Name, h.Value)
	}
	sb.WriteString("\r\n")

	if err := resp.SendHeaders(response.StatusOK, response.Options{Length: -1, ContentType: "message/http"}); err != nil {
		return err
	}
	if err := resp.SendBody(strings.NewReader(sb.String()), nil); err != nil {
		return err
	}
	return resp.SendBody(io.Reader(req.Body), nil)
}

func hostSupports(host *vhost.VirtualHost, method string) bool {
	for _, m := range host.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

// allowedMethods computes the Allow set (spec §4.10 step 4): the
// built-ins plus, for the server-wide "OPTIONS *" pseudo-context, the
// host's supported methods, or otherwise just this context's methods.
func allowedMethods(host *vhost.VirtualHost, ctx *vhost.ContextInfo, wildcard bool) []string {
	set := make(map[string]bool, len(builtinMethods))
	for _, m := range builtinMethods {
		set[m] = true
	}
	var extra []string
	if wildcard {
		extra = host.Methods()
	} else {
		extra = ctx.Methods()
	}
	for _, m := range extra {
		set[m] = true
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
