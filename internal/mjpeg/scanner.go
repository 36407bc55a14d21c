package mjpeg

import "errors"

// JPEG start-of-image and end-of-image markers.
var (
	SOI = []byte{0xFF, 0xD8}
	EOI = []byte{0xFF, 0xD9}
)

// ErrMarkerNotFound is returned when a marker does not occur within the
// bounded scan window.
var ErrMarkerNotFound = errors.New("mjpeg: marker not found within scan window")

// FindMarkerEnd consumes bytes from c until pattern has been seen, and
// returns the number of bytes consumed, i.e. the offset of the first byte
// after the match. At most maxScan bytes are consumed.
func FindMarkerEnd(c *Cursor, pattern []byte, maxScan int) (int, error) {
	if len(pattern) == 0 {
		return 0, nil
	}
	matched := 0
	for i := 0; i < maxScan; i++ {
		b, err := c.ReadByte()
		if err != nil {
			return -1, err
		}
		if b != pattern[matched] {
			matched = 0
		}
		// A mismatch may still start a new match (FF FF D8).
		if b == pattern[matched] {
			matched++
			if matched == len(pattern) {
				return i + 1, nil
			}
		}
	}
	return -1, ErrMarkerNotFound
}

// FindMarkerStart is like FindMarkerEnd but returns the offset of the first
// byte of the match.
func FindMarkerStart(c *Cursor, pattern []byte, maxScan int) (int, error) {
	end, err := FindMarkerEnd(c, pattern, maxScan)
	if err != nil {
		return -1, err
	}
	return end - len(pattern), nil
}
