package server

import (
	"strings"

	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
)

// shouldClose decides whether the connection loop closes the socket
// after this transaction rather than looping for another request
// (spec §4.11's keep-alive step): close on an explicit Connection:
// close (request or response), or whenever the request's version is
// anything other than HTTP/1.1 - there is no keep-alive exception for
// HTTP/1.0, matching the request/response loop's version check. A
// response that never sent headers (e.g. a handler that returned 0
// without writing anything) always closes - the stream's framing can
// no longer be trusted.
func shouldClose(req *request.Request, resp *response.Response) bool {
	if !resp.HeadersSent() {
		return true
	}
	if v, ok := resp.Headers.Get("Connection"); ok && strings.EqualFold(strings.TrimSpace(v), "close") {
		return true
	}
	if !req.IsHTTP11() {
		return true
	}
	return req.WantsClose()
}
