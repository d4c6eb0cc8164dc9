// The gesture machines translate mapped pointer/touch streams into element
// store mutations. All three follow the same shape: idle -> active -> idle,
// entered on a down event over an element, exited on up or loss of the
// required touch count. Every move is computed from the snapshot taken at
// the down event, never from the previous move's output, so repeated moves
// cannot accumulate floating-point drift.
package gesture

import (
	"math"
	"sync"

	"printcraftAPI/internal/design"
	"printcraftAPI/internal/geometry"
)

// MinElementSize is the floor pinch and resize apply to element dimensions.
const MinElementSize = 20

const (
	MinFontSize = 10
	MaxFontSize = 100
)

// Mode names the active interaction of a machine.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeDrag   Mode = "drag"
	ModePinch  Mode = "pinch"
	ModeResize Mode = "resize"
)

// MouseDrag moves an element with the mouse. The pointer-to-element offset is
// captured once on down; each move re-derives the position from the live
// pointer minus that fixed offset.
type MouseDrag struct {
	mu        sync.Mutex
	mode      Mode
	elementID string
	offsetX   float64
	offsetY   float64
}

func NewMouseDrag() *MouseDrag { return &MouseDrag{mode: ModeNone} }

func (m *MouseDrag) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == "" {
		return ModeNone
	}
	return m.mode
}

func (m *MouseDrag) Begin(store *design.Store, elementID string, p geometry.Point) bool {
	el, ok := store.Get(elementID)
	if !ok {
		return false
	}
	m.mu.Lock()
	m.mode = ModeDrag
	m.elementID = elementID
	m.offsetX = p.X - el.X
	m.offsetY = p.Y - el.Y
	m.mu.Unlock()
	return true
}

func (m *MouseDrag) Move(store *design.Store, p geometry.Point) bool {
	m.mu.Lock()
	if m.mode != ModeDrag {
		m.mu.Unlock()
		return false
	}
	id := m.elementID
	x := p.X - m.offsetX
	y := p.Y - m.offsetY
	m.mu.Unlock()

	return store.Update(id, design.Patch{X: design.Float(x), Y: design.Float(y)})
}

func (m *MouseDrag) End() {
	m.mu.Lock()
	m.mode = ModeNone
	m.elementID = ""
	m.mu.Unlock()
}

// pinchSnapshot is the pre-interaction state a two-finger gesture computes
// its deltas against.
type pinchSnapshot struct {
	distance float64
	midpoint geometry.Point
	width    float64
	height   float64
	x        float64
	y        float64
	angle    float64
	rotation float64
}

// Touch handles single-touch drag and two-finger pinch/rotate as one machine
// owning one gesture state: a second finger arriving mid-drag switches modes,
// finger loss drops back to drag or idle, malformed input never panics.
// Pinch only applies to image elements.
type Touch struct {
	mu        sync.Mutex
	mode      Mode
	elementID string
	offsetX   float64
	offsetY   float64
	pinch     pinchSnapshot
}

func NewTouch() *Touch { return &Touch{mode: ModeNone} }

func (t *Touch) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode == "" {
		return ModeNone
	}
	return t.mode
}

// Down enters the machine for the current touch set on an element.
func (t *Touch) Down(store *design.Store, elementID string, touches []geometry.Point) bool {
	el, ok := store.Get(elementID)
	if !ok {
		return false
	}
	switch len(touches) {
	case 1:
		t.mu.Lock()
		t.mode = ModeDrag
		t.elementID = elementID
		t.offsetX = touches[0].X - el.X
		t.offsetY = touches[0].Y - el.Y
		t.mu.Unlock()
		return true
	case 2:
		return t.beginPinch(el, touches)
	default:
		t.End()
		return false
	}
}

func (t *Touch) beginPinch(el design.Element, touches []geometry.Point) bool {
	if el.Type != design.TypeImage {
		// Text elements do not support pinch; stay (or fall back to) idle.
		t.End()
		return false
	}
	t.mu.Lock()
	t.mode = ModePinch
	t.elementID = el.ID
	t.pinch = pinchSnapshot{
		distance: geometry.Distance(touches[0], touches[1]),
		midpoint: geometry.Midpoint(touches[0], touches[1]),
		width:    el.Width,
		height:   el.Height,
		x:        el.X,
		y:        el.Y,
		angle:    geometry.AngleDegrees(touches[0], touches[1]),
		rotation: el.Rotation,
	}
	t.mu.Unlock()
	return true
}

// Move applies the current touch set. The returned preventScroll flag tells
// the client to suppress the platform's default scrolling while a gesture is
// active.
func (t *Touch) Move(store *design.Store, touches []geometry.Point) (preventScroll bool) {
	t.mu.Lock()
	mode := t.mode
	id := t.elementID
	t.mu.Unlock()

	switch {
	case mode == ModeDrag && len(touches) == 1:
		t.mu.Lock()
		x := touches[0].X - t.offsetX
		y := touches[0].Y - t.offsetY
		t.mu.Unlock()
		store.Update(id, design.Patch{X: design.Float(x), Y: design.Float(y)})
		return true

	case mode == ModeDrag && len(touches) == 2:
		// Second finger arrived mid-drag: degrade by switching modes.
		el, ok := store.Get(id)
		if !ok {
			t.End()
			return false
		}
		return t.beginPinch(el, touches)

	case mode == ModePinch && len(touches) == 2:
		t.movePinch(store, id, touches)
		return true

	case mode == ModePinch:
		// Lost a finger; the pinch is over.
		t.End()
		return false
	}
	return false
}

func (t *Touch) movePinch(store *design.Store, id string, touches []geometry.Point) {
	t.mu.Lock()
	snap := t.pinch
	t.mu.Unlock()

	if snap.distance <= 0 {
		return
	}

	scale := geometry.Distance(touches[0], touches[1]) / snap.distance
	width := math.Max(MinElementSize, snap.width*scale)
	height := math.Max(MinElementSize, snap.height*scale)

	// Re-anchor the scaled offset from the initial midpoint to the current
	// midpoint so the pinch stays centered on the fingers, not on the
	// element's corner.
	mid := geometry.Midpoint(touches[0], touches[1])
	x := mid.X + (snap.x-snap.midpoint.X)*scale
	y := mid.Y + (snap.y-snap.midpoint.Y)*scale

	angleDelta := geometry.AngleDegrees(touches[0], touches[1]) - snap.angle
	rotation := geometry.NormalizeDegrees(snap.rotation + angleDelta)

	// All five outputs land in one atomic update per move event.
	store.Update(id, design.Patch{
		X:        design.Float(x),
		Y:        design.Float(y),
		Width:    design.Float(width),
		Height:   design.Float(height),
		Rotation: design.Float(rotation),
	})
}

// Up handles touch-end/cancel: with fingers remaining a pinch degrades to a
// drag on the surviving finger, otherwise the machine goes idle.
func (t *Touch) Up(store *design.Store, touches []geometry.Point) {
	t.mu.Lock()
	mode := t.mode
	id := t.elementID
	t.mu.Unlock()

	if mode == ModePinch && len(touches) == 1 {
		if el, ok := store.Get(id); ok {
			t.mu.Lock()
			t.mode = ModeDrag
			t.offsetX = touches[0].X - el.X
			t.offsetY = touches[0].Y - el.Y
			t.mu.Unlock()
			return
		}
	}
	t.End()
}

func (t *Touch) End() {
	t.mu.Lock()
	t.mode = ModeNone
	t.elementID = ""
	t.pinch = pinchSnapshot{}
	t.mu.Unlock()
}

// resizeSnapshot holds pre-drag geometry for the corner handle.
type resizeSnapshot struct {
	anchorX  float64
	anchorY  float64
	diagonal float64
	width    float64
	height   float64
	fontSize float64
	isText   bool
}

// CornerResize scales an element by dragging its bottom-right handle. The
// anchor is the element's top-left corner; scale is the ratio of the current
// anchor-to-pointer diagonal to the one captured on down. Images scale width
// and height by the same factor (aspect may drift across gestures); text
// scales width and font size, clamped.
type CornerResize struct {
	mu        sync.Mutex
	mode      Mode
	elementID string
	snap      resizeSnapshot
}

func NewCornerResize() *CornerResize { return &CornerResize{mode: ModeNone} }

func (r *CornerResize) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == "" {
		return ModeNone
	}
	return r.mode
}

func (r *CornerResize) Begin(store *design.Store, elementID string, p geometry.Point) bool {
	el, ok := store.Get(elementID)
	if !ok {
		return false
	}
	r.mu.Lock()
	r.mode = ModeResize
	r.elementID = elementID
	r.snap = resizeSnapshot{
		anchorX:  el.X,
		anchorY:  el.Y,
		diagonal: geometry.Distance(geometry.Point{X: el.X, Y: el.Y}, p),
		width:    el.Width,
		height:   el.Height,
		fontSize: el.FontSize,
		isText:   el.Type == design.TypeText,
	}
	r.mu.Unlock()
	return true
}

func (r *CornerResize) Move(store *design.Store, p geometry.Point) bool {
	r.mu.Lock()
	if r.mode != ModeResize {
		r.mu.Unlock()
		return false
	}
	id := r.elementID
	snap := r.snap
	r.mu.Unlock()

	// A zero initial diagonal would divide to NaN and poison every
	// subsequent write; treat the whole move as a no-op instead.
	if snap.diagonal == 0 {
		return false
	}

	scale := geometry.Distance(geometry.Point{X: snap.anchorX, Y: snap.anchorY}, p) / snap.diagonal

	if snap.isText {
		width := math.Max(MinElementSize, snap.width*scale)
		fontSize := math.Min(MaxFontSize, math.Max(MinFontSize, snap.fontSize*scale))
		return store.Update(id, design.Patch{
			Width:    design.Float(width),
			FontSize: design.Float(fontSize),
		})
	}
	return store.Update(id, design.Patch{
		Width:  design.Float(snap.width * scale),
		Height: design.Float(snap.height * scale),
	})
}

func (r *CornerResize) End() {
	r.mu.Lock()
	r.mode = ModeNone
	r.elementID = ""
	r.snap = resizeSnapshot{}
	r.mu.Unlock()
}
