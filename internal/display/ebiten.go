// Package display shows the stream in an Ebitengine window.
package display

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Controls are the viewer actions bound to keys.
type Controls struct {
	ToggleStreaming func() // Space
	ClearDisplay    func() // C
}

// EbitenDisplay renders the latest frame with Ebitengine. It implements
// render.Surface; SetFrame and Clear may be called from any goroutine.
type EbitenDisplay struct {
	title    string
	controls Controls
	closing  atomic.Bool

	mu          sync.Mutex
	frame       *image.RGBA
	dirty       bool
	ebitenImage *ebiten.Image
	screenW     int
	screenH     int
}

// NewEbitenDisplay creates an Ebitengine-based display.
func NewEbitenDisplay(title string, controls Controls) *EbitenDisplay {
	return &EbitenDisplay{
		title:    title,
		controls: controls,
		screenW:  800,
		screenH:  600,
	}
}

// SetFrame replaces the displayed frame.
func (d *EbitenDisplay) SetFrame(img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = img
	d.dirty = true
	if img != nil {
		d.screenW = img.Bounds().Dx()
		d.screenH = img.Bounds().Dy()
	}
}

// Clear blanks the window until the next frame.
func (d *EbitenDisplay) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = nil
	d.dirty = true
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(d.screenW, d.screenH)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

// Close ends Run at the next update.
func (d *EbitenDisplay) Close() {
	d.closing.Store(true)
}

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	if d.closing.Load() {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) && d.controls.ToggleStreaming != nil {
		d.controls.ToggleStreaming()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyC) && d.controls.ClearDisplay != nil {
		d.controls.ClearDisplay()
	}
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	frame, dirty := d.frame, d.dirty
	d.dirty = false
	d.mu.Unlock()

	screen.Fill(color.Black)
	if frame == nil {
		return
	}

	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	if d.ebitenImage == nil ||
		d.ebitenImage.Bounds().Dx() != fw ||
		d.ebitenImage.Bounds().Dy() != fh {
		d.ebitenImage = ebiten.NewImage(fw, fh)
		dirty = true
	}
	if dirty {
		d.ebitenImage.WritePixels(frame.Pix)
	}

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(fw), float64(fh))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(d.ebitenImage, op)
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
