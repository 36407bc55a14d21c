package render

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/junsooki/camview/internal/encoder"
)

// FileSurface keeps the latest frame on disk as a JPEG, for running the
// viewer without a window. Writes go to a temporary file that is renamed
// over the target so readers never see a partial image.
type FileSurface struct {
	path string
	enc  encoder.Encoder

	mu     sync.Mutex
	last   *image.RGBA
	writes uint64
}

// NewFileSurface writes frames to path using enc.
func NewFileSurface(path string, enc encoder.Encoder) *FileSurface {
	return &FileSurface{path: path, enc: enc}
}

func (f *FileSurface) SetFrame(img *image.RGBA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = img
	if err := f.write(img); err != nil {
		slog.Warn("render: write frame", "path", f.path, "error", err)
		return
	}
	f.writes++
}

// Clear writes a black frame the size of the last one.
func (f *FileSurface) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return
	}
	blank := image.NewRGBA(f.last.Bounds())
	for i := 3; i < len(blank.Pix); i += 4 {
		blank.Pix[i] = 0xFF
	}
	f.last = blank
	if err := f.write(blank); err != nil {
		slog.Warn("render: clear frame", "path", f.path, "error", err)
	}
}

// Writes returns how many frames were written.
func (f *FileSurface) Writes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FileSurface) write(img *image.RGBA) error {
	data, err := f.enc.Encode(img)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".frame-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
