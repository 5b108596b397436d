package request

import (
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/oakhttp/oakhttp/internal/textproto"
)

// maxFormBodySize bounds the body read by GetParams (spec §4.6 step 5
// - a 2 MiB cap on form bodies read into memory).
const maxFormBodySize = 2 << 20

// ErrFormBodyTooLarge is returned by GetParams when the request body
// exceeds maxFormBodySize.
var ErrFormBodyTooLarge = errors.New("request: form body exceeds 2MiB limit")

// GetBaseURL resolves scheme, host, and port for this request,
// memoizing the result: URI authority (not modeled - this
// implementation only accepts origin-form targets) falls back to the
// Host header, then to the server's detected local hostname. The port
// is the one the connection was accepted on (from LocalAddr).
func (r *Request) GetBaseURL() *url.URL {
	r.baseURLOnce.Do(func() {
		scheme := "http"
		if r.Secure {
			scheme = "https"
		}
		host := r.Host()
		if host == "" {
			host = localHostname()
		}
		if _, port, err := net.SplitHostPort(r.LocalAddr); err == nil && port != "" {
			host = net.JoinHostPort(strings.Trim(host, "[]"), port)
		}
		r.baseURL = &url.URL{Scheme: scheme, Host: host}
	})
	return r.baseURL
}

func localHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// GetParams decodes application/x-www-form-urlencoded parameters from
// the query string and, if Content-Type matches, from the body (up to
// maxFormBodySize; the body is consumed destructively). Order is
// preserved and memoized; the body is decoded at most once.
func (r *Request) GetParams() ([]textproto.FormValue, error) {
	r.paramsOnce.Do(func() {
		r.params = textproto.DecodeForm(r.RawQuery)

		ct, ok := r.Headers.ParseParams("Content-Type")
		if !ok || r.Body == nil {
			return
		}
		var mediaType string
		if len(ct) > 0 {
			mediaType = ct[0].Key
		}
		if !strings.EqualFold(strings.TrimSpace(mediaType), "application/x-www-form-urlencoded") {
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxFormBodySize+1))
		if err != nil {
			r.paramsErr = err
			return
		}
		if len(data) > maxFormBodySize {
			r.paramsErr = ErrFormBodyTooLarge
			return
		}
		r.params = append(r.params, textproto.DecodeForm(string(data))...)
	})
	return r.params, r.paramsErr
}

// ParamsMap converts GetParams' ordered list to a map, keeping only
// the first value for any repeated name.
func (r *Request) ParamsMap() (map[string]string, error) {
	list, err := r.GetParams()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(list))
	for _, f := range list {
		if _, exists := m[f.Name]; !exists {
			m[f.Name] = f.Value
		}
	}
	return m, nil
}
