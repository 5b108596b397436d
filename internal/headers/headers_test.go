package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleHeader(t *testing.T) {
	h := New()
	data := []byte("Host: localhost:42069\r\n")
	n, done, err := h.Parse(data, 100)
	require.NoError(t, err)
	val, ok := h.Get("host")
	assert.True(t, ok)
	assert.Equal(t, "localhost:42069", val)
	assert.Equal(t, len(data), n)
	assert.False(t, done)
}

func TestParseTrimsWhitespace(t *testing.T) {
	h := New()
	n, done, err := h.Parse([]byte("Host:   localhost:42069   \r\n"), 100)
	require.NoError(t, err)
	val, ok := h.Get("host")
	assert.True(t, ok)
	assert.Equal(t, "localhost:42069", val)
	assert.False(t, done)
	assert.Greater(t, n, 0)
}

func TestParseDuplicateNamesConcatenate(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("X-A: one\r\nX-A: two\r\n"), 100)
	require.NoError(t, err)
	val, ok := h.Get("x-a")
	assert.True(t, ok)
	assert.Equal(t, "one, two", val)
}

func TestParseTerminatingBlankLine(t *testing.T) {
	h := New()
	n, done, err := h.Parse([]byte("\r\n"), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, done)
}

func TestParseHeadersThenBlankLine(t *testing.T) {
	h := New()
	data := []byte("Host: example.com\r\n\r\n")
	n, done, err := h.Parse(data, 100)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.True(t, done)
}

func TestParseWhitespaceBeforeColonIsMalformed(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("Host : localhost\r\n"), 100)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestParseWhitespaceInNameIsMalformed(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("Ho st: localhost\r\n"), 100)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestParseCaseInsensitiveLookup(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("Content-Type: application/json\r\n"), 100)
	require.NoError(t, err)
	val, ok := h.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", val)
	val, ok = h.Get("CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "application/json", val)
}

func TestParseNoColonIsMalformed(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("InvalidHeader\r\n"), 100)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestParseObsoleteLineFoldingContinuesPrior(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("Host: example.com\r\n continued\r\n"), 100)
	require.NoError(t, err)
	val, _ := h.Get("host")
	assert.Equal(t, "example.com continued", val)
}

func TestParseTabFoldingContinuesPrior(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("Host: example.com\r\n\tcontinued\r\n"), 100)
	require.NoError(t, err)
	val, _ := h.Get("host")
	assert.Equal(t, "example.com continued", val)
}

func TestParseFoldWithoutPriorHeaderFails(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte(" continued\r\n"), 100)
	require.ErrorIs(t, err, ErrFoldWithoutPrior)
}

func TestParseIncompleteHeaderWaitsForMore(t *testing.T) {
	h := New()
	n, done, err := h.Parse([]byte("Host: example.com"), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, done)
	assert.Empty(t, h.GetAll("host"))
}

func TestAddAppendsDuplicates(t *testing.T) {
	h := New()
	h.Add("X-Custom", "value1")
	h.Add("X-Custom", "value2")
	assert.Equal(t, []string{"value1", "value2"}, h.GetAll("x-custom"))
}

func TestReplaceFirstOverwritesValue(t *testing.T) {
	h := New()
	h.Add("X-Custom", "value1")
	h.Add("X-Custom", "value2")
	h.ReplaceFirst("X-Custom", "new-value")
	assert.Equal(t, []string{"new-value", "value2"}, h.GetAll("x-custom"))
}

func TestGetMissingHeader(t *testing.T) {
	h := New()
	val, ok := h.Get("non-existent")
	assert.False(t, ok)
	assert.Equal(t, "", val)
}

func TestParseMultipleHeadersInOneBlock(t *testing.T) {
	h := New()
	data := []byte("Host: example.com\r\nContent-Type: text/html\r\nContent-Length: 42\r\n")
	_, done, err := h.Parse(data, 100)
	require.NoError(t, err)
	assert.False(t, done)
	val, _ := h.Get("host")
	assert.Equal(t, "example.com", val)
	val, _ = h.Get("content-type")
	assert.Equal(t, "text/html", val)
	val, _ = h.Get("content-length")
	assert.Equal(t, "42", val)
}

func TestParseEmptyValueAllowed(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("X-Empty:\r\n"), 100)
	require.NoError(t, err)
	val, ok := h.Get("x-empty")
	assert.True(t, ok)
	assert.Equal(t, "", val)
}

func TestParseTooManyLines(t *testing.T) {
	h := New()
	_, _, err := h.Parse([]byte("A: 1\r\nB: 2\r\nC: 3\r\n"), 2)
	require.ErrorIs(t, err, ErrTooManyHeaders)
}

func TestParseParamsSplitsContentType(t *testing.T) {
	params := ParseParams("text/html; charset=utf-8")
	v, ok := params.Get("charset")
	assert.True(t, ok)
	assert.Equal(t, "utf-8", v)
	assert.Equal(t, "text/html", params[0].Key)
}
