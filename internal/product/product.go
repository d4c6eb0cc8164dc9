package product

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Product is a printable item from the catalog. CanvasWidth/CanvasHeight
// define the design-space coordinate system every element position is
// expressed in.
type Product struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	Category     string    `json:"category" db:"category"`
	Brand        string    `json:"brand" db:"brand"`
	CanvasWidth  float64   `json:"canvas_width" db:"canvas_width"`
	CanvasHeight float64   `json:"canvas_height" db:"canvas_height"`
	Price        int       `json:"price" db:"price"`
	Inventory    int       `json:"inventory" db:"inventory"`
	ImageURL     string    `json:"image_url" db:"image_url"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Mockup is the overlay drawn on top of a customized design. Offsets and
// size are stored per product but the canvas always stretches the overlay to
// the full canvas; the stored placement is carried, not applied.
type Mockup struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	Rotation  float64   `json:"rotation" db:"rotation"`
	OffsetX   float64   `json:"offset_x" db:"offset_x"`
	OffsetY   float64   `json:"offset_y" db:"offset_y"`
	Width     float64   `json:"width" db:"width"`
	Height    float64   `json:"height" db:"height"`
}

// SavedDesign is a persisted canvas design for a product, stored as a
// versioned JSON document (see internal/design.Document).
type SavedDesign struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	UserID    *string         `json:"user_id,omitempty" db:"user_id"`
	Design    json.RawMessage `json:"design" db:"design"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Detail is what the customizer loads to open a canvas: the product, its
// optional mockup overlay, and any previously saved design.
type Detail struct {
	Product     Product      `json:"product"`
	Mockup      *Mockup      `json:"mockup,omitempty"`
	SavedDesign *SavedDesign `json:"saved_design,omitempty"`
}
