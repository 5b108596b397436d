// Package staticfiles is a conforming example vhost.Handler that
// serves a directory tree from disk: it resolves a request path to a
// file under a root, supplies Last-Modified/ETag validators to
// internal/condition, and delegates range and compression framing
// entirely to internal/response. It does not sniff content beyond
// file extension and never generates a directory listing.
package staticfiles

import (
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oakhttp/oakhttp/internal/condition"
	"github.com/oakhttp/oakhttp/internal/request"
	"github.com/oakhttp/oakhttp/internal/response"
	"github.com/oakhttp/oakhttp/internal/vhost"
)

// Handler serves files rooted at Root. IndexFile is tried when a
// request resolves to a directory; an empty IndexFile disables that
// rewrite and directories 404.
type Handler struct {
	Root        string
	IndexFile   string
	DefaultType string
}

// New returns a Handler rooted at root with the conventional
// "index.html" directory index and "application/octet-stream" default
// content type.
func New(root string) *Handler {
	return &Handler{
		Root:        root,
		IndexFile:   "index.html",
		DefaultType: "application/octet-stream",
	}
}

// Serve implements vhost.Handler. The two type assertions always
// succeed: dispatch only ever passes the concrete types it built.
func (h *Handler) Serve(w vhost.ResponseWriter, r vhost.Request) int {
	req := r.(*request.Request)
	resp := w.(*response.Response)

	if req.Method != "GET" && req.Method != "HEAD" {
		resp.Headers.ReplaceFirst("Allow", "GET, HEAD")
		_ = resp.SendError(response.StatusMethodNotAllowed, "")
		return 0
	}

	cleanPath, err := resolvePath(h.Root, req.Path)
	if err != nil {
		_ = resp.SendError(response.StatusForbidden, "")
		return 0
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			_ = resp.SendError(response.StatusNotFound, "")
			return 0
		}
		_ = resp.SendError(response.StatusInternalServerError, "")
		return 0
	}

	if info.IsDir() {
		if !strings.HasSuffix(req.Path, "/") {
			_ = resp.Redirect(req.Path+"/", false)
			return 0
		}
		if h.IndexFile == "" {
			_ = resp.SendError(response.StatusNotFound, "")
			return 0
		}
		cleanPath = filepath.Join(cleanPath, h.IndexFile)
		info, err = os.Stat(cleanPath)
		if err != nil {
			_ = resp.SendError(response.StatusNotFound, "")
			return 0
		}
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		_ = resp.SendError(response.StatusInternalServerError, "")
		return 0
	}
	defer f.Close()

	lastModified := info.ModTime()
	etag := makeETag(info)

	outcome := condition.Evaluate(req.Headers, req.Method, lastModified, etag)
	switch outcome {
	case condition.OutcomePreconditionFailed:
		_ = resp.SendError(response.StatusPreconditionFailed, "")
		return 0
	case condition.OutcomeNotModified:
		resp.Headers.ReplaceFirst("ETag", etag)
		_ = resp.SendHeaders(response.StatusNotModified, response.Options{Length: 0})
		return 0
	}

	contentType := contentTypeFor(cleanPath, h.DefaultType)
	length := info.Size()

	if rangeHeader, ok := req.Headers.Get("Range"); ok {
		ifRange, _ := req.Headers.Get("If-Range")
		if condition.ApplyIfRange(ifRange, lastModified, etag) {
			rng, ok, unsatisfiable := condition.ParseRange(rangeHeader, length)
			if unsatisfiable {
				resp.Headers.ReplaceFirst("Content-Range", "bytes */"+strconv.FormatInt(length, 10))
				_ = resp.SendError(response.StatusRequestedRangeNotSatisfiable, "")
				return 0
			}
			if ok {
				opts := response.Options{
					Length:       length,
					LastModified: lastModified,
					ETag:         etag,
					ContentType:  contentType,
					Range:        &rng,
				}
				if err := resp.SendHeaders(response.StatusPartialContent, opts); err != nil {
					return 0
				}
				_ = resp.SendBody(f, &rng)
				return 0
			}
		}
	}

	resp.Headers.ReplaceFirst("Accept-Ranges", "bytes")
	opts := response.Options{
		Length:       length,
		LastModified: lastModified,
		ETag:         etag,
		ContentType:  contentType,
	}
	if err := resp.SendHeaders(response.StatusOK, opts); err != nil {
		return 0
	}
	_ = resp.SendBody(io.Reader(f), nil)
	return 0
}

// resolvePath joins root and the request path, rejecting any result
// that escapes root via "..".
func resolvePath(root, reqPath string) (string, error) {
	decoded, err := url.PathUnescape(reqPath)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + decoded)
	full := filepath.Join(root, clean)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", os.ErrPermission
	}
	return full, nil
}

// makeETag builds a weak validator from modification time and size,
// the same cheap fingerprint a file server can compute without
// reading content.
func makeETag(info os.FileInfo) string {
	return `W/"` + strconv.FormatInt(info.ModTime().Unix(), 36) + "-" + strconv.FormatInt(info.Size(), 36) + `"`
}

func contentTypeFor(path, defaultType string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return defaultType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultType
}
