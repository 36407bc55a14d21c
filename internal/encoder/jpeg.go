package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
)

// DefaultQuality is used by streams that do not set one.
const DefaultQuality = 75

// JPEGEncoder encodes frames as baseline JPEG. It is safe for concurrent
// use; scratch buffers are pooled and sized from the previous frame.
type JPEGEncoder struct {
	quality int
	hint    atomic.Int64
	pool    sync.Pool
}

// NewJPEGEncoder creates a JPEG encoder. Quality is clamped to 1-100.
func NewJPEGEncoder(quality int) *JPEGEncoder {
	return &JPEGEncoder{
		quality: min(max(quality, 1), 100),
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// Quality returns the effective quality.
func (e *JPEGEncoder) Quality() int {
	return e.quality
}

// Encode returns img as a JPEG image running from SOI to EOI. The returned
// slice is owned by the caller.
func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	buf := e.pool.Get().(*bytes.Buffer)
	defer e.pool.Put(buf)
	buf.Reset()
	buf.Grow(int(e.hint.Load()))

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	e.hint.Store(int64(buf.Len()))
	return bytes.Clone(buf.Bytes()), nil
}
