package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printcraftAPI/internal/blob"
	"printcraftAPI/internal/design"
)

type recordingUploader struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
	url     string
	err     error
	block   chan struct{}
}

func (u *recordingUploader) Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error) {
	if u.block != nil {
		<-u.block
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, objectPath)
	if u.err != nil {
		return "", u.err
	}
	if u.url != "" {
		return u.url, nil
	}
	return "https://storage.googleapis.com/printcraft/" + objectPath, nil
}

func (u *recordingUploader) Delete(ctx context.Context, objectPath string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deletes = append(u.deletes, objectPath)
	return true
}

type storeJanitor struct{ blobs *blob.Registry }

func (j storeJanitor) ReleaseBlob(ref string) bool { return j.blobs.Release(ref) }
func (j storeJanitor) DeleteRemote(string)         {}

func encodedImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newFixture(uploader *recordingUploader) (*Ingestor, *design.Store, *blob.Registry, *design.Background) {
	reg := blob.NewRegistry()
	store := design.NewStore(storeJanitor{blobs: reg})
	bg := design.NewBackground()
	ing := New(store, reg, uploader, bg, 300, 600, "designs/session-1")
	return ing, store, reg, bg
}

func TestContainFit(t *testing.T) {
	// The end-to-end reference case: 600x600 source on a 300x600 canvas.
	w, h, x, y := ContainFit(600, 600, 300, 600)
	assert.Equal(t, 300.0, w)
	assert.Equal(t, 300.0, h)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 150.0, y)

	// A tall source fills the height and centers horizontally.
	w, h, x, y = ContainFit(100, 400, 300, 600)
	assert.Equal(t, 150.0, w)
	assert.Equal(t, 600.0, h)
	assert.Equal(t, 75.0, x)
	assert.Equal(t, 0.0, y)
}

func TestIngestPlacesPlaceholderSynchronously(t *testing.T) {
	uploader := &recordingUploader{block: make(chan struct{})}
	ing, store, reg, _ := newFixture(uploader)

	id, done, err := ing.Ingest(context.Background(), encodedImage(t, 600, 600))
	require.NoError(t, err)

	// Placeholder is visible before the upload has even started.
	el, ok := store.Get(id)
	require.True(t, ok)
	assert.True(t, blob.IsEphemeral(el.Value))
	assert.Equal(t, 300.0, el.Width)
	assert.Equal(t, 300.0, el.Height)
	assert.Equal(t, 0.0, el.X)
	assert.Equal(t, 150.0, el.Y)
	assert.Equal(t, 1, reg.Live())

	close(uploader.block)
	require.NoError(t, <-done)
}

func TestIngestSettlesToDurableURL(t *testing.T) {
	uploader := &recordingUploader{}
	ing, store, reg, bg := newFixture(uploader)

	id, done, err := ing.Ingest(context.Background(), encodedImage(t, 600, 600))
	require.NoError(t, err)
	require.NoError(t, <-done)

	el, ok := store.Get(id)
	require.True(t, ok)
	assert.False(t, blob.IsEphemeral(el.Value))
	assert.Contains(t, el.Value, "designs/session-1/")
	assert.Equal(t, 0, reg.Live(), "ephemeral reference released after settle")

	// 300x300 on a 300x600 canvas leaves uncovered area: blur derived.
	colorSlot, blurred := bg.Snapshot()
	assert.Empty(t, colorSlot)
	assert.NotEmpty(t, blurred)
}

func TestIngestFullCoverClearsBackground(t *testing.T) {
	uploader := &recordingUploader{}
	ing, _, _, bg := newFixture(uploader)
	bg.SetColor("#ff0000")

	// Same aspect ratio as the canvas: contain-fit covers everything.
	_, done, err := ing.Ingest(context.Background(), encodedImage(t, 300, 600))
	require.NoError(t, err)
	require.NoError(t, <-done)

	colorSlot, blurred := bg.Snapshot()
	assert.Empty(t, colorSlot)
	assert.Empty(t, blurred)
}

func TestIngestFailureRemovesPlaceholder(t *testing.T) {
	uploader := &recordingUploader{err: fmt.Errorf("bucket unavailable")}
	ing, store, reg, _ := newFixture(uploader)

	id, done, err := ing.Ingest(context.Background(), encodedImage(t, 600, 600))
	require.NoError(t, err)
	assert.Error(t, <-done)

	_, ok := store.Get(id)
	assert.False(t, ok, "failed upload must not leave a stuck placeholder")
	assert.Equal(t, 0, reg.Live(), "blob released exactly once via delete")
}

func TestLostUpdateGuard(t *testing.T) {
	uploader := &recordingUploader{block: make(chan struct{})}
	ing, store, reg, _ := newFixture(uploader)

	id, done, err := ing.Ingest(context.Background(), encodedImage(t, 600, 600))
	require.NoError(t, err)

	// User deletes the element while the upload is in flight.
	require.True(t, store.Delete(id))
	assert.Equal(t, 0, reg.Live())

	close(uploader.block)
	require.NoError(t, <-done)

	_, ok := store.Get(id)
	assert.False(t, ok, "completion must not resurrect a deleted element")

	uploader.mu.Lock()
	defer uploader.mu.Unlock()
	require.Len(t, uploader.uploads, 1)
	assert.Equal(t, uploader.uploads, uploader.deletes, "orphaned object cleaned up")
}

func TestSequentialIngestsKeepOneImage(t *testing.T) {
	uploader := &recordingUploader{}
	ing, store, _, _ := newFixture(uploader)

	var lastID string
	for n := 0; n < 3; n++ {
		id, done, err := ing.Ingest(context.Background(), encodedImage(t, 600, 600))
		require.NoError(t, err)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("ingest did not settle")
		}
		lastID = id
	}

	images := 0
	for _, el := range store.Elements() {
		if el.Type == design.TypeImage {
			images++
			assert.Equal(t, lastID, el.ID)
		}
	}
	assert.Equal(t, 1, images)
}

func TestCompressPassesSmallImagesThrough(t *testing.T) {
	data := encodedImage(t, 200, 200)
	out, contentType, _, err := Compress(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "image/png", contentType)
}

func TestCompressShrinksOversizedImages(t *testing.T) {
	data := encodedImage(t, 2400, 1200)
	out, contentType, decoded, err := Compress(data)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.LessOrEqual(t, len(out), maxUploadBytes)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), maxUploadPixel)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1920, img.Bounds().Dx())
	assert.Equal(t, 960, img.Bounds().Dy())
}

func TestIngestRejectsGarbage(t *testing.T) {
	uploader := &recordingUploader{}
	ing, store, _, _ := newFixture(uploader)

	_, _, err := ing.Ingest(context.Background(), []byte("not an image"))
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}
