package mjpeg

import (
	"fmt"
	"io"
)

// WriteFrame writes one JPEG image to w in the layout NextFrame reads: an
// optional "Content-Length" header block followed by the image bytes.
func WriteFrame(w io.Writer, jpeg []byte, withLength bool) (int, error) {
	var n int
	if withLength {
		m, err := fmt.Fprintf(w, "%s: %d\r\n\r\n", ContentLengthKey, len(jpeg))
		n += m
		if err != nil {
			return n, err
		}
	}
	m, err := w.Write(jpeg)
	n += m
	return n, err
}
