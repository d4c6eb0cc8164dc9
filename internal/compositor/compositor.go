// The compositor turns a canvas scene into the rasterized order artifact.
// It is a pure function of its scene snapshot: capturing twice without an
// intervening edit yields identical bytes, and nothing here writes back into
// the element store.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"printcraftAPI/internal/design"
)

// SupersampleScale is the fixed raster oversampling factor. The artifact is
// printed, so it is captured at 3x the design canvas dimensions.
const SupersampleScale = 3.0

// blankCapturePNGBytes is the floor under which an encoded capture is
// treated as a blank/failed raster rather than a real composition.
const blankCapturePNGBytes = 1000

var (
	ErrCaptureInProgress = errors.New("capture already in progress")
	ErrBlankCapture      = errors.New("capture produced a blank raster")
	ErrNoCanvas          = errors.New("product canvas dimensions not loaded")
)

// Scene is the immutable snapshot a capture renders. Selection decorations
// are never part of a scene; the session strips them before building one.
type Scene struct {
	CanvasWidth  float64
	CanvasHeight float64

	// At most one of these is set (see design.Background).
	BackgroundColor   string
	BackgroundBlurred string

	Elements []design.Element

	// OverlayURL is the product mockup. It is always stretched to the full
	// canvas regardless of stored offsets; OverlayRotation is carried from
	// the catalog but not applied, matching that override.
	OverlayURL      string
	OverlayRotation float64
}

// Compositor renders scenes for one design session. The in-flight latch
// rejects re-entrant captures: capture toggles shared decoration state on
// the session, so two at once would tread on each other.
type Compositor struct {
	loader   *Loader
	inFlight atomic.Bool

	fontOnce sync.Once
	fontErr  error
	sfnt     *opentype.Font
}

func New(loader *Loader) *Compositor {
	return &Compositor{loader: loader}
}

// Capture renders the scene and returns it as a PNG data URI.
func (c *Compositor) Capture(ctx context.Context, scene Scene) (string, error) {
	if scene.CanvasWidth <= 0 || scene.CanvasHeight <= 0 {
		return "", ErrNoCanvas
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return "", ErrCaptureInProgress
	}
	defer c.inFlight.Store(false)

	// Every referenced image must be decoded before rasterizing; capturing
	// with loads still in flight is how blank artifacts happen. Individual
	// load failures are tolerated (logged by the loader) and the element is
	// simply skipped.
	images := c.loader.PreloadScene(ctx, scene)

	dataURI, err := c.render(scene, images)
	if err != nil {
		return "", err
	}
	return dataURI, nil
}

func (c *Compositor) render(scene Scene, images map[string]image.Image) (string, error) {
	ss := SupersampleScale
	w := int(scene.CanvasWidth * ss)
	h := int(scene.CanvasHeight * ss)
	dc := gg.NewContext(w, h)

	c.drawBackground(dc, scene, images)

	for _, el := range scene.Elements {
		switch el.Type {
		case design.TypeImage:
			c.drawImageElement(dc, el, images)
		case design.TypeText:
			if err := c.drawTextElement(dc, el); err != nil {
				return "", err
			}
		}
	}

	if scene.OverlayURL != "" {
		if overlay, ok := images[scene.OverlayURL]; ok {
			drawStretched(dc, overlay, scene.CanvasWidth*ss, scene.CanvasHeight*ss)
		}
	}

	data, err := encodePNG(dc.Image())
	if err != nil {
		return "", fmt.Errorf("failed to encode capture: %w", err)
	}
	if len(data) < blankCapturePNGBytes {
		return "", ErrBlankCapture
	}
	return pngDataURI(data), nil
}

func (c *Compositor) drawBackground(dc *gg.Context, scene Scene, images map[string]image.Image) {
	if scene.BackgroundBlurred != "" {
		if bg, ok := images[scene.BackgroundBlurred]; ok {
			drawStretched(dc, bg, scene.CanvasWidth*SupersampleScale, scene.CanvasHeight*SupersampleScale)
			return
		}
	}
	if scene.BackgroundColor != "" {
		dc.SetHexColor(scene.BackgroundColor)
		dc.Clear()
	}
}

func (c *Compositor) drawImageElement(dc *gg.Context, el design.Element, images map[string]image.Image) {
	img, ok := images[el.Value]
	if !ok || el.Width <= 0 || el.Height <= 0 {
		return
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return
	}

	ss := SupersampleScale
	dc.Push()
	dc.Translate((el.X+el.Width/2)*ss, (el.Y+el.Height/2)*ss)
	dc.Rotate(gg.Radians(el.Rotation))
	dc.Scale(el.Width*ss/float64(bounds.Dx()), el.Height*ss/float64(bounds.Dy()))
	dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	dc.Pop()
}

func (c *Compositor) drawTextElement(dc *gg.Context, el design.Element) error {
	if el.Value == "" {
		return nil
	}
	size := el.FontSize
	if size <= 0 {
		size = 24
	}
	face, err := c.face(size * SupersampleScale)
	if err != nil {
		return err
	}

	ss := SupersampleScale
	dc.Push()
	dc.Translate((el.X+el.Width/2)*ss, (el.Y+el.Height/2)*ss)
	dc.Rotate(gg.Radians(el.Rotation))
	dc.SetFontFace(face)

	// Text is drawn in full, centered on its box: the raster never clips an
	// overflowing string the way the live layout might.
	if el.TextShadow != "" {
		dc.SetRGBA(0, 0, 0, 0.45)
		dc.DrawStringAnchored(el.Value, 2*ss, 2*ss, 0.5, 0.5)
	}
	color := el.Color
	if color == "" {
		color = "#000000"
	}
	dc.SetHexColor(color)
	dc.DrawStringAnchored(el.Value, 0, 0, 0.5, 0.5)
	dc.Pop()
	return nil
}

// face returns a font face at the given pixel size. A single bundled face
// serves every fontFamily value; the raster needs deterministic glyphs, not
// the browser's font stack.
func (c *Compositor) face(size float64) (font.Face, error) {
	c.fontOnce.Do(func() {
		c.sfnt, c.fontErr = opentype.Parse(goregular.TTF)
	})
	if c.fontErr != nil {
		return nil, fmt.Errorf("failed to parse bundled font: %w", c.fontErr)
	}
	return opentype.NewFace(c.sfnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func drawStretched(dc *gg.Context, img image.Image, targetW, targetH float64) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return
	}
	dc.Push()
	dc.Scale(targetW/float64(bounds.Dx()), targetH/float64(bounds.Dy()))
	dc.DrawImage(img, 0, 0)
	dc.Pop()
}
