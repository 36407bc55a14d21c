package mjpeg

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ContentLengthKey is the header carrying the declared payload length.
const ContentLengthKey = "Content-Length"

var (
	// ErrMalformedHeader means the header block is not text. The demuxer
	// treats it the same as a missing length.
	ErrMalformedHeader = errors.New("mjpeg: malformed frame header")

	ErrContentLengthMissing = errors.New("mjpeg: content length missing")
	ErrInvalidContentLength = errors.New("mjpeg: invalid content length")
)

// Header is the text preamble of a frame as name/value pairs. Names are
// case-sensitive; a repeated name keeps the last value.
type Header map[string]string

// ParseHeader parses newline-separated "Name: Value" lines. Blank lines and
// lines without a colon are skipped. A block that is not text yields an
// empty header and ErrMalformedHeader.
func ParseHeader(b []byte) (Header, error) {
	h := make(Header)
	if !isText(b) {
		return h, ErrMalformedHeader
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		h[name] = strings.TrimSpace(value)
	}
	return h, nil
}

// ContentLength returns the declared payload length, ErrContentLengthMissing
// when the header is absent, or ErrInvalidContentLength when its value is not
// a non-negative decimal integer.
func (h Header) ContentLength() (int, error) {
	v, ok := h[ContentLengthKey]
	if !ok {
		return 0, ErrContentLengthMissing
	}
	if v == "" {
		return 0, ErrInvalidContentLength
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, ErrInvalidContentLength
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, ErrInvalidContentLength
	}
	return n, nil
}

func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}
