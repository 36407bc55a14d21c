// Package encoder produces the JPEG images carried in an MJPEG stream.
package encoder

import "image"

// Encoder encodes one image as a self-contained JPEG frame.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}
