package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printcraftAPI/internal/design"
	"printcraftAPI/internal/geometry"
)

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

func storeWithImage(t *testing.T) (*design.Store, string) {
	t.Helper()
	s := design.NewStore(nil)
	el := &design.Element{
		ID:     design.NewElementID(),
		Type:   design.TypeImage,
		Value:  "https://cdn.test/designs/a.jpg",
		X:      100,
		Y:      200,
		Width:  120,
		Height: 80,
	}
	s.Add(el)
	return s, el.ID
}

func storeWithText(t *testing.T) (*design.Store, string) {
	t.Helper()
	s := design.NewStore(nil)
	el := &design.Element{
		ID:       design.NewElementID(),
		Type:     design.TypeText,
		Value:    "Hi",
		X:        40,
		Y:        60,
		Width:    100,
		Height:   30,
		FontSize: 24,
	}
	s.Add(el)
	return s, el.ID
}

func TestMouseDragOffsetInvariance(t *testing.T) {
	// Dragging through intermediate steps must land exactly where a direct
	// P0 -> P1 move lands: position derives from the down-snapshot offset,
	// never from per-frame deltas.
	direct, directID := storeWithImage(t)
	stepped, steppedID := storeWithImage(t)

	p0 := pt(110, 215)
	p1 := pt(231.5, 97.25)

	m1 := NewMouseDrag()
	require.True(t, m1.Begin(direct, directID, p0))
	m1.Move(direct, p1)
	m1.End()

	m2 := NewMouseDrag()
	require.True(t, m2.Begin(stepped, steppedID, p0))
	m2.Move(stepped, pt(150, 180))
	m2.Move(stepped, pt(90.3, 300.7))
	m2.Move(stepped, pt(200, 10))
	m2.Move(stepped, p1)
	m2.End()

	a, _ := direct.Get(directID)
	b, _ := stepped.Get(steppedID)
	assert.InDelta(t, a.X, b.X, 1e-9)
	assert.InDelta(t, a.Y, b.Y, 1e-9)
	assert.Equal(t, ModeNone, m2.Mode())
}

func TestMouseDragMoveAfterEndIsNoop(t *testing.T) {
	s, id := storeWithImage(t)
	m := NewMouseDrag()
	require.True(t, m.Begin(s, id, pt(110, 210)))
	m.End()

	assert.False(t, m.Move(s, pt(500, 500)))
	el, _ := s.Get(id)
	assert.Equal(t, 100.0, el.X)
}

func TestMouseDragUnknownElement(t *testing.T) {
	s, _ := storeWithImage(t)
	m := NewMouseDrag()
	assert.False(t, m.Begin(s, "el-ghost", pt(0, 0)))
	assert.Equal(t, ModeNone, m.Mode())
}

func TestTouchDragPreventsScroll(t *testing.T) {
	s, id := storeWithImage(t)
	tm := NewTouch()
	require.True(t, tm.Down(s, id, []geometry.Point{pt(120, 220)}))

	prevent := tm.Move(s, []geometry.Point{pt(140, 260)})
	assert.True(t, prevent)

	el, _ := s.Get(id)
	assert.InDelta(t, 120, el.X, 1e-9)
	assert.InDelta(t, 240, el.Y, 1e-9)

	tm.Up(s, nil)
	assert.Equal(t, ModeNone, tm.Mode())
}

func TestPinchScaleFloor(t *testing.T) {
	s, id := storeWithImage(t)
	tm := NewTouch()

	// Fingers far apart, then pinched almost closed.
	require.True(t, tm.Down(s, id, []geometry.Point{pt(100, 200), pt(300, 200)}))
	assert.Equal(t, ModePinch, tm.Mode())

	tm.Move(s, []geometry.Point{pt(199, 200), pt(201, 200)})

	el, _ := s.Get(id)
	assert.GreaterOrEqual(t, el.Width, float64(MinElementSize))
	assert.GreaterOrEqual(t, el.Height, float64(MinElementSize))
}

func TestPinchScalesAroundGestureMidpoint(t *testing.T) {
	s, id := storeWithImage(t)
	tm := NewTouch()

	t0 := []geometry.Point{pt(100, 200), pt(200, 200)} // distance 100, midpoint (150,200)
	require.True(t, tm.Down(s, id, t0))

	// Spread to distance 200 around the same midpoint.
	tm.Move(s, []geometry.Point{pt(50, 200), pt(250, 200)})

	el, _ := s.Get(id)
	assert.InDelta(t, 240, el.Width, 1e-9)
	assert.InDelta(t, 160, el.Height, 1e-9)
	// Initial offset from midpoint was (-50, 0), scaled by 2 -> (-100, 0).
	assert.InDelta(t, 50, el.X, 1e-9)
	assert.InDelta(t, 200, el.Y, 1e-9)
	assert.InDelta(t, 0, el.Rotation, 1e-9)
}

func TestPinchRotationWrapsModulo360(t *testing.T) {
	s, id := storeWithImage(t)
	require.True(t, s.Update(id, design.Patch{Rotation: design.Float(350)}))

	tm := NewTouch()
	require.True(t, tm.Down(s, id, []geometry.Point{pt(100, 200), pt(200, 200)}))

	// Rotate the finger pair by 90 degrees clockwise.
	tm.Move(s, []geometry.Point{pt(150, 150), pt(150, 250)})

	el, _ := s.Get(id)
	assert.InDelta(t, 80, el.Rotation, 1e-9)
}

func TestPinchRejectsTextElements(t *testing.T) {
	s, id := storeWithText(t)
	tm := NewTouch()

	ok := tm.Down(s, id, []geometry.Point{pt(50, 70), pt(90, 70)})
	assert.False(t, ok)
	assert.Equal(t, ModeNone, tm.Mode())

	el, _ := s.Get(id)
	assert.Equal(t, 100.0, el.Width)
}

func TestSecondFingerMidDragSwitchesToPinch(t *testing.T) {
	s, id := storeWithImage(t)
	tm := NewTouch()

	require.True(t, tm.Down(s, id, []geometry.Point{pt(120, 220)}))
	assert.Equal(t, ModeDrag, tm.Mode())

	tm.Move(s, []geometry.Point{pt(120, 220), pt(220, 220)})
	assert.Equal(t, ModePinch, tm.Mode())
}

func TestFingerLossDegradesPinchToDrag(t *testing.T) {
	s, id := storeWithImage(t)
	tm := NewTouch()

	require.True(t, tm.Down(s, id, []geometry.Point{pt(100, 200), pt(200, 200)}))
	tm.Up(s, []geometry.Point{pt(140, 230)})
	assert.Equal(t, ModeDrag, tm.Mode())

	tm.Up(s, nil)
	assert.Equal(t, ModeNone, tm.Mode())
}

func TestCornerResizeImage(t *testing.T) {
	s, id := storeWithImage(t)
	r := NewCornerResize()

	// Anchor (100,200); pointer at the bottom-right corner, diagonal from a
	// 120x80 box.
	require.True(t, r.Begin(s, id, pt(220, 280)))
	assert.Equal(t, ModeResize, r.Mode())

	// Double the diagonal.
	require.True(t, r.Move(s, pt(340, 360)))

	el, _ := s.Get(id)
	assert.InDelta(t, 240, el.Width, 1e-9)
	assert.InDelta(t, 160, el.Height, 1e-9)

	r.End()
	assert.Equal(t, ModeNone, r.Mode())
}

func TestCornerResizeTextClampsFontSize(t *testing.T) {
	s, id := storeWithText(t)
	r := NewCornerResize()

	require.True(t, r.Begin(s, id, pt(140, 90)))

	// Grow far beyond the clamp ceiling.
	require.True(t, r.Move(s, pt(1040, 360)))
	el, _ := s.Get(id)
	assert.Equal(t, float64(MaxFontSize), el.FontSize)

	// Shrink far below the floor: font clamps to 10, width floors at 20.
	require.True(t, r.Move(s, pt(40.5, 60.5)))
	el, _ = s.Get(id)
	assert.Equal(t, float64(MinFontSize), el.FontSize)
	assert.Equal(t, float64(MinElementSize), el.Width)
}

func TestCornerResizeZeroDiagonalGuard(t *testing.T) {
	s, id := storeWithImage(t)
	r := NewCornerResize()

	// Pointer down exactly on the anchor corner.
	require.True(t, r.Begin(s, id, pt(100, 200)))
	assert.False(t, r.Move(s, pt(300, 300)), "zero initial diagonal must be a no-op")

	el, _ := s.Get(id)
	assert.Equal(t, 120.0, el.Width)
	assert.Equal(t, 80.0, el.Height)
}

func TestResizeSnapshotPreventsCompounding(t *testing.T) {
	s, id := storeWithImage(t)
	r := NewCornerResize()

	require.True(t, r.Begin(s, id, pt(220, 280)))

	// Repeating the same move many times must not keep growing the element.
	for i := 0; i < 5; i++ {
		require.True(t, r.Move(s, pt(280, 320)))
	}
	el, _ := s.Get(id)

	oneShot, oneShotID := storeWithImage(t)
	r2 := NewCornerResize()
	require.True(t, r2.Begin(oneShot, oneShotID, pt(220, 280)))
	require.True(t, r2.Move(oneShot, pt(280, 320)))
	want, _ := oneShot.Get(oneShotID)

	assert.InDelta(t, want.Width, el.Width, 1e-9)
	assert.InDelta(t, want.Height, el.Height, 1e-9)
}
