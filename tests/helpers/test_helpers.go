package helpers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"printcraftAPI/internal/orders"
	"printcraftAPI/internal/product"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SetupTestDB creates a test database connection. Skips the test when no
// database is configured so the suite can run without one.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL must be set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	return pool
}

// CleanupTestDB cleans up test data
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()
	_, err := pool.Exec(ctx, "DELETE FROM saved_designs WHERE user_id LIKE 'user_test_%'")
	if err != nil {
		t.Logf("Warning: failed to cleanup test data: %v", err)
	}
	_, err = pool.Exec(ctx, "DELETE FROM products WHERE slug LIKE 'test-%'")
	if err != nil {
		t.Logf("Warning: failed to cleanup test data: %v", err)
	}
	pool.Close()
}

// GenerateMockClerkJWT generates a mock JWT token for testing. Clerk cannot
// verify it, which is exactly what the guest-fallback tests need.
func GenerateMockClerkJWT(clerkID string) (string, error) {
	// Use a test secret key
	secretKey := []byte("test-secret-key-for-testing-only")

	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(),
		"azp": "test-app-id",
		"sid": "sess_test123",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// StubUploader is an in-memory storage.Uploader backed by an httptest server
// so uploaded objects are fetchable over HTTP, the way the compositor loader
// needs them.
type StubUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	paths   []string
	deleted []string
	server  *httptest.Server

	// Block, when set, makes Upload wait until the channel is closed. Lets
	// tests hold an image in its settling state.
	Block chan struct{}

	// FailWith, when set, makes Upload return this error.
	FailWith error
}

func NewStubUploader(t *testing.T) *StubUploader {
	u := &StubUploader{objects: make(map[string][]byte)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		data, ok := u.objects[strings.TrimPrefix(r.URL.Path, "/")]
		u.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *StubUploader) Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error) {
	if u.Block != nil {
		select {
		case <-u.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if u.FailWith != nil {
		return "", u.FailWith
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[objectPath] = data
	u.paths = append(u.paths, objectPath)
	return u.server.URL + "/" + objectPath, nil
}

func (u *StubUploader) Delete(ctx context.Context, objectPath string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, objectPath)
	delete(u.objects, objectPath)
	return true
}

// UploadedPaths returns every object path uploaded so far, optionally
// filtered by prefix.
func (u *StubUploader) UploadedPaths(prefix string) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	matched := []string{}
	for _, p := range u.paths {
		if strings.HasPrefix(p, prefix) {
			matched = append(matched, p)
		}
	}
	return matched
}

func (u *StubUploader) DeletedPaths() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string{}, u.deleted...)
}

func (u *StubUploader) BaseURL() string {
	return u.server.URL
}

// ObjectPathFromURL reverses Upload's public URL back into the object path,
// mirroring the real storage client.
func (u *StubUploader) ObjectPathFromURL(publicURL string) string {
	base := u.server.URL + "/"
	if !strings.HasPrefix(publicURL, base) {
		return ""
	}
	return strings.TrimPrefix(publicURL, base)
}

// StubPlacer records order placements instead of calling the remote
// procedures.
type StubPlacer struct {
	mu          sync.Mutex
	AuthCalls   int
	GuestCalls  int
	LastPayload orders.Payload
	LastBearer  string

	// Err, when set, is returned from both procedures.
	Err error
}

func (p *StubPlacer) PlaceOrder(ctx context.Context, payload orders.Payload, bearerToken string) (*orders.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AuthCalls++
	p.LastPayload = payload
	p.LastBearer = bearerToken
	if p.Err != nil {
		return nil, p.Err
	}
	return &orders.Envelope{OrderID: "order-test-1"}, nil
}

func (p *StubPlacer) PlaceGuestOrder(ctx context.Context, payload orders.Payload) (*orders.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GuestCalls++
	p.LastPayload = payload
	if p.Err != nil {
		return nil, p.Err
	}
	return &orders.Envelope{OrderID: "order-test-1"}, nil
}

func (p *StubPlacer) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AuthCalls + p.GuestCalls
}

// StubInventory records local inventory decrements.
type StubInventory struct {
	mu         sync.Mutex
	Decrements []string
}

func (s *StubInventory) DecrementInventory(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Decrements = append(s.Decrements, productID)
	return nil
}

// TestProduct builds a catalog product with the given canvas dimensions.
func TestProduct(canvasW, canvasH float64) *product.Product {
	return &product.Product{
		ID:           uuid.New(),
		Name:         "Test Mug",
		Slug:         "test-mug",
		Category:     "mugs",
		Brand:        "printcraft",
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
		Price:        2499,
		Inventory:    10,
		IsActive:     true,
	}
}

// PNGBytes renders a solid-color PNG of the given size.
func PNGBytes(t *testing.T, w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}
