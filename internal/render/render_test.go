package render

import (
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/junsooki/camview/internal/encoder"
)

type fakeDecoder struct {
	w, h int
	err  error
}

func (d fakeDecoder) Decode(data []byte) (*image.RGBA, error) {
	if d.err != nil {
		return nil, d.err
	}
	return image.NewRGBA(image.Rect(0, 0, d.w, d.h)), nil
}

type recordingSurface struct {
	mu      sync.Mutex
	frames  []*image.RGBA
	cleared int
}

func (s *recordingSurface) SetFrame(img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, img)
}

func (s *recordingSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func TestSinkPaint(t *testing.T) {
	surface := &recordingSurface{}
	sink := NewSink(fakeDecoder{w: 4, h: 3}, surface)

	for i := 0; i < 3; i++ {
		if err := sink.Paint([]byte{0xFF, 0xD8, 0xFF, 0xD9}); err != nil {
			t.Fatalf("Paint() error = %v", err)
		}
	}
	if len(surface.frames) != 3 {
		t.Fatalf("surface got %d frames, want 3", len(surface.frames))
	}
	if got := sink.Frames(); got != 3 {
		t.Errorf("Frames() = %d, want 3", got)
	}

	sink.Clear()
	if surface.cleared != 1 {
		t.Errorf("surface cleared %d times, want 1", surface.cleared)
	}
}

func TestSinkPaintDecodeError(t *testing.T) {
	errBad := errors.New("bad jpeg")
	surface := &recordingSurface{}
	sink := NewSink(fakeDecoder{err: errBad}, surface)

	if err := sink.Paint(nil); !errors.Is(err, errBad) {
		t.Fatalf("Paint() error = %v, want %v", err, errBad)
	}
	if len(surface.frames) != 0 {
		t.Errorf("surface got %d frames after a decode failure", len(surface.frames))
	}
}

func TestSinkOverlay(t *testing.T) {
	surface := &recordingSurface{}
	sink := NewSink(fakeDecoder{w: 120, h: 40}, surface, WithOverlay())
	if err := sink.Paint(nil); err != nil {
		t.Fatalf("Paint() error = %v", err)
	}

	img := surface.frames[0]
	lit := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			lit++
		}
	}
	if lit == 0 {
		t.Error("overlay drew nothing")
	}
}

func TestFPSMeter(t *testing.T) {
	var m fpsMeter
	start := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		m.tick(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	// Six ticks over the first 500ms window.
	if m.fps < 11.9 || m.fps > 12.1 {
		t.Errorf("fps = %.2f, want 12", m.fps)
	}
}

func TestFileSurface(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.jpg")
	fs := NewFileSurface(path, encoder.NewJPEGEncoder(80))

	fs.Clear() // nothing painted yet
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Clear() before any frame created %s", path)
	}

	fs.SetFrame(image.NewRGBA(image.Rect(0, 0, 16, 8)))
	fs.Clear()
	if got := fs.Writes(); got != 1 {
		t.Errorf("Writes() = %d, want 1", got)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode written frame: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("written frame bounds = %v", b)
	}
}

func TestSinkFPS(t *testing.T) {
	sink := NewSink(fakeDecoder{w: 2, h: 2}, &recordingSurface{})
	if got := sink.FPS(); got != 0 {
		t.Fatalf("FPS() before painting = %v, want 0", got)
	}
	for i := 0; i < 2; i++ {
		if err := sink.Paint(nil); err != nil {
			t.Fatalf("Paint() error = %v", err)
		}
		time.Sleep(300 * time.Millisecond)
	}
	if err := sink.Paint(nil); err != nil {
		t.Fatalf("Paint() error = %v", err)
	}
	if got := sink.FPS(); got <= 0 {
		t.Errorf("FPS() = %v, want a measured rate", got)
	}
	sink.Clear()
	if got := sink.FPS(); got != 0 {
		t.Errorf("FPS() after Clear = %v, want 0", got)
	}
}
