package geometry

import "math"

// Point is a position in canvas design-space units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport describes where the rendered canvas container currently sits in
// device coordinates and how large it is drawn. The container origin moves
// when the page scrolls, so callers re-send it rather than caching it.
type Viewport struct {
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
	Scale   float64 `json:"scale"`
}

// ScaleFactor returns the uniform ratio between rendered pixels and design
// units. The min of the two axis ratios preserves the canvas aspect ratio.
func ScaleFactor(renderedW, renderedH, designW, designH float64) float64 {
	if designW <= 0 || designH <= 0 {
		return 0
	}
	return math.Min(renderedW/designW, renderedH/designH)
}

// ToDesignSpace converts device/viewport pointer coordinates into unscaled
// design-space coordinates. A zero viewport (canvas not mounted yet) maps
// everything to the zero point.
func (v Viewport) ToDesignSpace(clientX, clientY float64) Point {
	if v.Scale <= 0 {
		return Point{}
	}
	return Point{
		X: (clientX - v.OriginX) / v.Scale,
		Y: (clientY - v.OriginY) / v.Scale,
	}
}

// Distance returns the straight-line distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Midpoint returns the point halfway between two points.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// AngleDegrees returns the angle of the segment a->b in degrees,
// positive clockwise in screen coordinates (y grows downward).
func AngleDegrees(a, b Point) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X) * 180 / math.Pi
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
