package textproto

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTokenStopsAtDelimiter(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("GET /path HTTP/1.1\r\nHost: x\r\n"))
	tok, err := ReadToken(r, '\n', 100, ISO88591)
	require.NoError(t, err)
	assert.Equal(t, "GET /path HTTP/1.1", tok)
}

func TestReadTokenStripsTrailingCR(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("value\r\nrest"))
	tok, err := ReadToken(r, '\n', 100, ISO88591)
	require.NoError(t, err)
	assert.Equal(t, "value", tok)
}

func TestReadTokenTooLarge(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("this-is-way-too-long\n"))
	_, err := ReadToken(r, '\n', 5, ISO88591)
	require.ErrorIs(t, err, ErrTokenTooLarge)
}

func TestReadTokenNoDelimiterErrors(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("no newline here"))
	_, err := ReadToken(r, '\n', 100, ISO88591)
	require.ErrorIs(t, err, ErrNoDelimiter)
}

func TestReadTokenAnyReadsUntilEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("everything up to EOF"))
	tok, err := ReadTokenAny(r, 100, UTF8)
	require.NoError(t, err)
	assert.Equal(t, "everything up to EOF", tok)
}

func TestReadTokenDecodesISO88591(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("caf\xe9\n"))
	tok, err := ReadToken(r, '\n', 100, ISO88591)
	require.NoError(t, err)
	assert.Equal(t, "café", tok)
}
