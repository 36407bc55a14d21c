package decoder

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// JPEGDecoder decodes JPEG bytes into *image.RGBA, optionally scaling large
// frames down to fit a bounding box.
type JPEGDecoder struct {
	maxW, maxH int
	scaler     xdraw.Scaler
}

// Option configures a JPEGDecoder.
type Option func(*JPEGDecoder)

// WithMaxSize scales frames larger than w x h down, preserving aspect ratio.
// Zero disables the bound on that axis.
func WithMaxSize(w, h int) Option {
	return func(d *JPEGDecoder) {
		d.maxW, d.maxH = w, h
	}
}

// WithFastScaling trades quality for speed when scaling.
func WithFastScaling() Option {
	return func(d *JPEGDecoder) {
		d.scaler = xdraw.NearestNeighbor
	}
}

func NewJPEGDecoder(opts ...Option) *JPEGDecoder {
	d := &JPEGDecoder{scaler: xdraw.ApproxBiLinear}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *JPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	b := img.Bounds()
	if w, h, ok := fitWithin(b.Dx(), b.Dy(), d.maxW, d.maxH); ok {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		d.scaler.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		return dst, nil
	}

	// Convert to RGBA if needed.
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

// fitWithin returns the scaled size of a w x h image bounded by maxW x maxH,
// and false if no scaling is needed.
func fitWithin(w, h, maxW, maxH int) (int, int, bool) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		scale = min(scale, float64(maxH)/float64(h))
	}
	if scale >= 1 {
		return w, h, false
	}
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)), true
}
