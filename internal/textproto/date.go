package textproto

import (
	"errors"
	"time"
)

// HTTP date layouts, tried in this order on input (first match wins)
// per spec §4.7/§4.6. Output is always RFC 1123.
const (
	rfc1123 = "Mon, 02 Jan 2006 15:04:05 GMT"
	rfc850  = "Monday, 02-Jan-06 15:04:05 GMT"
	asctime = "Mon Jan  2 15:04:05 2006"
)

var ErrInvalidDate = errors.New("textproto: invalid HTTP date")
var ErrYearOutOfRange = errors.New("textproto: year out of range 0001-9999")

// FormatDate renders t as an RFC 1123 HTTP date in GMT. The year must
// lie in 0001..9999; callers passing timestamps outside that range get
// back an empty string rather than a malformed header value.
func FormatDate(t time.Time) string {
	t = t.UTC()
	if t.Year() < 1 || t.Year() > 9999 {
		return ""
	}
	return t.Format(rfc1123)
}

// ParseDate parses an HTTP date in RFC 1123, RFC 850, or ANSI asctime
// format, trying each in turn and returning the first successful
// parse.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{rfc1123, rfc850, asctime} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			if t.Year() < 1 || t.Year() > 9999 {
				return time.Time{}, ErrYearOutOfRange
			}
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
