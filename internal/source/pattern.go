package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/junsooki/camview/internal/encoder"
	"github.com/junsooki/camview/internal/mjpeg"
)

// Pattern synthesizes an MJPEG stream of numbered test frames. It needs no
// camera and is used for local runs and tests.
type Pattern struct {
	Width, Height int
	Frames        int           // 0 streams until closed
	Interval      time.Duration // pause between frames
	Quality       int
	OmitLength    bool // write frames without a Content-Length header
}

func (p Pattern) Open(ctx context.Context) (io.ReadCloser, error) {
	w, h := p.Width, p.Height
	if w <= 0 || h <= 0 {
		w, h = 320, 240
	}
	quality := p.Quality
	if quality <= 0 {
		quality = encoder.DefaultQuality
	}
	enc := encoder.NewJPEGEncoder(quality)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(p.generate(ctx, pw, enc, w, h))
	}()
	return closeOnCancel(ctx, pr), nil
}

func (p Pattern) generate(ctx context.Context, w io.Writer, enc encoder.Encoder, width, height int) error {
	for i := 1; p.Frames <= 0 || i <= p.Frames; i++ {
		data, err := enc.Encode(PatternFrame(width, height, i))
		if err != nil {
			return fmt.Errorf("source: encode pattern frame: %w", err)
		}
		if _, err := mjpeg.WriteFrame(w, data, !p.OmitLength); err != nil {
			return err
		}
		if p.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Interval):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// PatternFrame draws test frame n: vertical color bars shifted by n with
// the frame number in the corner.
func PatternFrame(width, height, n int) *image.RGBA {
	bars := []color.RGBA{
		{0xC0, 0xC0, 0xC0, 0xFF},
		{0xC0, 0xC0, 0x00, 0xFF},
		{0x00, 0xC0, 0xC0, 0xFF},
		{0x00, 0xC0, 0x00, 0xFF},
		{0xC0, 0x00, 0xC0, 0xFF},
		{0xC0, 0x00, 0x00, 0xFF},
		{0x00, 0x00, 0xC0, 0xFF},
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barW := max(width/len(bars), 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, bars[((x/barW)+n)%len(bars)])
		}
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, height-8),
	}
	d.DrawString(fmt.Sprintf("#%d", n))
	return img
}
