// Package condition evaluates HTTP conditional-request headers
// (If-Match, If-None-Match, If-Modified-Since, If-Unmodified-Since)
// and Range/If-Range headers against a resource's validators.
package condition

import (
	"strconv"
	"strings"
	"time"

	"github.com/oakhttp/oakhttp/internal/headers"
	"github.com/oakhttp/oakhttp/internal/textproto"
)

// Outcome is the status a response should use once every applicable
// conditional header has been evaluated. Zero means "no override -
// proceed with whatever status the handler would otherwise send".
type Outcome int

const (
	OutcomeNone Outcome = 0
	// these mirror the status codes they produce; kept distinct from
	// net/http's constants so this package has no such dependency.
	OutcomePreconditionFailed Outcome = 412
	OutcomeNotModified        Outcome = 304
	OutcomeForceOK            Outcome = 200
)

// Evaluate runs the four conditional-header checks in spec §4.8 order
// against a resource identified by lastModified and etag, for a
// request method (GET/HEAD get 304 treatment on If-None-Match; other
// methods get 412). Only OutcomePreconditionFailed short-circuits the
// remaining checks. If-Modified-Since yields OutcomeNotModified or
// OutcomeForceOK, and If-None-Match may still change that result: a
// mismatch forces OutcomeForceOK, a match on a method other than
// GET/HEAD returns OutcomePreconditionFailed, and a match never turns
// an earlier OutcomeForceOK back into OutcomeNotModified.
func Evaluate(h *headers.Headers, method string, lastModified time.Time, etag string) Outcome {
	result := OutcomeNone

	if v, ok := h.Get("If-Match"); ok {
		if !matchesStrong(v, etag) {
			return OutcomePreconditionFailed
		}
	}

	if v, ok := h.Get("If-Unmodified-Since"); ok {
		if t, err := textproto.ParseDate(v); err == nil && lastModified.After(t) {
			return OutcomePreconditionFailed
		}
	}

	if v, ok := h.Get("If-Modified-Since"); ok {
		if t, err := textproto.ParseDate(v); err == nil && !t.After(time.Now().UTC()) {
			if lastModified.After(t) {
				result = OutcomeForceOK
			} else if result != OutcomeForceOK {
				result = OutcomeNotModified
			}
		}
	}

	if v, ok := h.Get("If-None-Match"); ok {
		if matchesWeak(v, etag) {
			if isGetOrHead(method) {
				if result != OutcomeForceOK {
					result = OutcomeNotModified
				}
			} else {
				return OutcomePreconditionFailed
			}
		} else {
			result = OutcomeForceOK
		}
	}

	return result
}

func isGetOrHead(method string) bool {
	return strings.EqualFold(method, "GET") || strings.EqualFold(method, "HEAD")
}

// matchesStrong implements If-Match semantics: "*" matches any
// non-empty etag; weak (W/-prefixed) tags never match in strong mode.
func matchesStrong(header, etag string) bool {
	if etag == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, tok := range splitETagList(header) {
		if strings.HasPrefix(tok, "W/") {
			continue
		}
		if tok == etag {
			return true
		}
	}
	return false
}

// matchesWeak implements If-None-Match semantics: weak comparison,
// ignoring any W/ prefix on either side.
func matchesWeak(header, etag string) bool {
	if strings.TrimSpace(header) == "*" {
		return etag != ""
	}
	stripped := strings.TrimPrefix(etag, "W/")
	for _, tok := range splitETagList(header) {
		if strings.TrimPrefix(tok, "W/") == stripped {
			return true
		}
	}
	return false
}

func splitETagList(header string) []string {
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// Range is an inclusive byte range [Start, End] resolved against a
// known resource length.
type Range struct {
	Start, End int64
}

// ParseRange parses a Range header value of the form
// "bytes=A-B,C-D,...", collapsing multiple ranges into the single
// enclosing range per spec §4.8. Returns (Range{}, false) if the
// header is absent or the computed start is >= length (caller should
// send 416 in that case - distinguished from "ignore" by the
// unsatisfiable return). Any single malformed token, or a token with
// end < start, invalidates the whole header - the Range header is
// then ignored entirely rather than processing only the valid tokens.
func ParseRange(header string, length int64) (r Range, ok bool, unsatisfiable bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Range{}, false, false
	}
	body := header[len(prefix):]

	var lo int64 = -1
	var hi int64 = -1
	any := false

	for _, tok := range strings.Split(body, ",") {
		tok = strings.TrimSpace(tok)
		dash := strings.IndexByte(tok, '-')
		if dash == -1 {
			return Range{}, false, false
		}
		startStr, endStr := tok[:dash], tok[dash+1:]

		var start, end int64
		switch {
		case startStr == "" && endStr != "":
			n, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil || n < 0 {
				return Range{}, false, false
			}
			start = length - n
			if start < 0 {
				start = 0
			}
			end = length - 1
		case startStr != "" && endStr == "":
			n, err := strconv.ParseInt(startStr, 10, 64)
			if err != nil || n < 0 {
				return Range{}, false, false
			}
			start = n
			end = length - 1
		case startStr != "" && endStr != "":
			s, err1 := strconv.ParseInt(startStr, 10, 64)
			e, err2 := strconv.ParseInt(endStr, 10, 64)
			if err1 != nil || err2 != nil || s < 0 || e < 0 {
				return Range{}, false, false
			}
			start, end = s, e
		default:
			return Range{}, false, false
		}
		if end < start {
			return Range{}, false, false
		}
		if !any || start < lo {
			lo = start
		}
		if !any || end > hi {
			hi = end
		}
		any = true
	}

	if !any {
		return Range{}, false, false
	}
	if lo >= length {
		return Range{}, false, true
	}
	if hi >= length {
		hi = length - 1
	}
	return Range{Start: lo, End: hi}, true, false
}

// ApplyIfRange decides whether a previously-parsed range should be
// dropped (the whole entity sent instead) given the If-Range header:
// a date that's older than lastModified, or an etag that doesn't
// match, means "entity changed - ignore the range".
func ApplyIfRange(header string, lastModified time.Time, etag string) (keep bool) {
	if header == "" {
		return true
	}
	if t, err := textproto.ParseDate(header); err == nil {
		return !lastModified.After(t)
	}
	return matchesStrong(header, etag)
}
