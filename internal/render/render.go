// Package render turns raw JPEG frames into pixels on a surface.
package render

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/junsooki/camview/internal/decoder"
)

// Surface displays decoded frames.
type Surface interface {
	SetFrame(img *image.RGBA)
	Clear()
}

// Sink decodes frames and paints them on a Surface. Paint and Clear are
// called by one painter at a time.
type Sink struct {
	dec     decoder.Decoder
	surface Surface
	overlay bool

	mu     sync.Mutex
	meter  fpsMeter
	frames uint64
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithOverlay stamps the measured paint rate in the top-left corner.
func WithOverlay() SinkOption {
	return func(s *Sink) { s.overlay = true }
}

// NewSink returns a Sink painting on surface.
func NewSink(dec decoder.Decoder, surface Surface, opts ...SinkOption) *Sink {
	s := &Sink{dec: dec, surface: surface}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paint decodes one JPEG frame and hands it to the surface.
func (s *Sink) Paint(data []byte) error {
	img, err := s.dec.Decode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	fps := s.meter.tick(time.Now())
	s.frames++
	s.mu.Unlock()

	if s.overlay {
		drawLabel(img, fmt.Sprintf("%.1f FPS", fps))
	}
	s.surface.SetFrame(img)
	return nil
}

// Clear blanks the surface.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.meter = fpsMeter{}
	s.mu.Unlock()
	s.surface.Clear()
	slog.Debug("render: surface cleared")
}

// FPS returns the most recently measured paint rate.
func (s *Sink) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meter.fps
}

// Frames returns the number of frames painted.
func (s *Sink) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// fpsMeter averages the paint rate over half-second windows.
type fpsMeter struct {
	start time.Time
	count int
	fps   float64
}

func (m *fpsMeter) tick(now time.Time) float64 {
	if m.start.IsZero() {
		m.start = now
	}
	m.count++
	if d := now.Sub(m.start); d >= 500*time.Millisecond {
		m.fps = float64(m.count) / d.Seconds()
		m.start = now
		m.count = 0
	}
	return m.fps
}

func drawLabel(img *image.RGBA, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 0xFF, G: 0xFF, A: 0xFF}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(img.Rect.Min.X+8, img.Rect.Min.Y+16),
	}
	d.DrawString(text)
}
