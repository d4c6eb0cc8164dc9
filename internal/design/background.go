package design

import "sync"

// Background holds the canvas background: a solid color XOR a blurred-image
// data URI XOR neither. Setting one slot always clears the other.
type Background struct {
	mu      sync.Mutex
	color   string
	blurred string
}

func NewBackground() *Background { return &Background{} }

func (b *Background) SetColor(hex string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.color = hex
	b.blurred = ""
}

func (b *Background) SetBlurred(dataURI string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blurred = dataURI
	b.color = ""
}

func (b *Background) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.color = ""
	b.blurred = ""
}

// Snapshot returns (color, blurredDataURI); at most one is non-empty.
func (b *Background) Snapshot() (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.color, b.blurred
}
