package decoder

import "image"

// Decoder decodes a compressed frame into an image.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}
