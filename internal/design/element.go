package design

import (
	"fmt"
	"sync/atomic"
	"time"
)

type ElementType string

const (
	TypeText  ElementType = "text"
	TypeImage ElementType = "image"
)

// Element is a single item placed on the product canvas. Geometry is in
// design-space units, never rendered pixels. For text elements Value holds
// the literal string; for image elements it holds either an ephemeral blob
// reference (upload pending) or a durable storage URL — consumers must check
// which kind it is before treating it as durable.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	Value    string      `json:"value"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Width    float64     `json:"width"`
	Height   float64     `json:"height"`
	Rotation float64     `json:"rotation"`

	// Text-only presentation attributes, zero-valued and ignored for images.
	FontSize   float64 `json:"fontSize,omitempty"`
	Color      string  `json:"color,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	TextShadow string  `json:"textShadow,omitempty"`
}

// Patch is a partial attribute set merged into an element by Store.Update.
// Nil fields are left untouched.
type Patch struct {
	Value      *string  `json:"value,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	Rotation   *float64 `json:"rotation,omitempty"`
	FontSize   *float64 `json:"fontSize,omitempty"`
	Color      *string  `json:"color,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
	TextShadow *string  `json:"textShadow,omitempty"`
}

func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }

func (e *Element) apply(p Patch) {
	if p.Value != nil {
		e.Value = *p.Value
	}
	if p.X != nil {
		e.X = *p.X
	}
	if p.Y != nil {
		e.Y = *p.Y
	}
	if p.Width != nil {
		e.Width = *p.Width
	}
	if p.Height != nil {
		e.Height = *p.Height
	}
	if p.Rotation != nil {
		e.Rotation = *p.Rotation
	}
	if p.FontSize != nil {
		e.FontSize = *p.FontSize
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.FontFamily != nil {
		e.FontFamily = *p.FontFamily
	}
	if p.TextShadow != nil {
		e.TextShadow = *p.TextShadow
	}
}

var idSeq atomic.Uint64

// NewElementID returns an id unique within the process lifetime. Wall-clock
// nanoseconds plus a sequence suffix keeps ids collision-free even when two
// elements are created in the same nanosecond.
func NewElementID() string {
	return fmt.Sprintf("el-%d-%d", time.Now().UnixNano(), idSeq.Add(1))
}
