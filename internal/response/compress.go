package response

import (
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// compressiblePatterns are the glob patterns a content type must match
// (parameters stripped) to be eligible for gzip/deflate negotiation,
// per spec §4.7.
var compressiblePatterns = []string{
	"text/*",
	"*/javascript",
	"*icon",
	"*+xml",
	"*/json",
}

// compressible reports whether contentType matches any configured
// glob: a leading '*' matches as suffix, a trailing '*' as prefix,
// otherwise the pattern must match exactly.
func compressible(contentType string) bool {
	if semi := strings.IndexByte(contentType, ';'); semi != -1 {
		contentType = contentType[:semi]
	}
	contentType = strings.TrimSpace(contentType)
	for _, pat := range compressiblePatterns {
		if globMatch(pat, contentType) {
			return true
		}
	}
	return false
}

func globMatch(pattern, s string) bool {
	hasPrefixStar := strings.HasPrefix(pattern, "*")
	hasSuffixStar := strings.HasSuffix(pattern, "*")
	switch {
	case hasPrefixStar && hasSuffixStar:
		return strings.Contains(s, pattern[1:len(pattern)-1])
	case hasPrefixStar:
		return strings.HasSuffix(s, pattern[1:])
	case hasSuffixStar:
		return strings.HasPrefix(s, pattern[:len(pattern)-1])
	default:
		return s == pattern
	}
}

// compressWriter wraps w with gzip or deflate (klauspost/compress),
// picking gzip when both are acceptable.
func compressWriter(w io.Writer, acceptsGzip, acceptsDeflate bool) (io.WriteCloser, string) {
	switch {
	case acceptsGzip:
		return gzip.NewWriter(w), "gzip"
	case acceptsDeflate:
		fw, _ := flate.NewWriter(w, flate.DefaultCompression)
		return fw, "deflate"
	default:
		return nopWriteCloser{w}, ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// parseAcceptEncoding reports whether gzip and/or deflate appear as
// tokens in an Accept-Encoding header value (q-values are ignored;
// "q=0" exclusion is not modeled, matching the source's behavior).
func parseAcceptEncoding(v string) (gzip, deflate bool) {
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if semi := strings.IndexByte(tok, ';'); semi != -1 {
			tok = tok[:semi]
		}
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "gzip":
			gzip = true
		case "deflate":
			deflate = true
		}
	}
	return
}
