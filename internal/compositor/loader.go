package compositor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"printcraftAPI/internal/blob"
	"printcraftAPI/utils"
)

// maxImageBytes caps how much of a remote image the loader will read.
const maxImageBytes = 32 << 20

// BlobResolver resolves ephemeral blob references to their bytes.
type BlobResolver interface {
	Resolve(ref string) ([]byte, bool)
}

// ProxyRewriter rewrites a remote image URL to one servable with permissive
// cross-origin headers. Pixel-level raster reads require it.
type ProxyRewriter func(url string) string

// Loader fetches and decodes every image a scene references before the
// raster runs. It is shared across sessions; the Compositor owns per-capture
// state.
type Loader struct {
	client  *http.Client
	rewrite ProxyRewriter
	blobs   BlobResolver
}

func NewLoader(client *http.Client, rewrite ProxyRewriter, blobs BlobResolver) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if rewrite == nil {
		rewrite = func(u string) string { return u }
	}
	return &Loader{client: client, rewrite: rewrite, blobs: blobs}
}

// PreloadScene loads every distinct image URL the scene references. A failed
// load is logged and skipped — one broken remote image must not abort the
// whole capture.
func (l *Loader) PreloadScene(ctx context.Context, scene Scene) map[string]image.Image {
	refs := make([]string, 0, len(scene.Elements)+2)
	seen := make(map[string]bool)
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	for _, el := range scene.Elements {
		if el.Type == "image" {
			add(el.Value)
		}
	}
	add(scene.OverlayURL)
	add(scene.BackgroundBlurred)

	images := make(map[string]image.Image, len(refs))
	for _, ref := range refs {
		img, err := l.Load(ctx, ref)
		if err != nil {
			log.Printf("capture preload: skipping %s: %v", truncateRef(ref), err)
			continue
		}
		images[ref] = img
	}
	return images
}

// Load resolves one reference: an inline data URI, an ephemeral blob
// reference, or a remote URL fetched through the image proxy.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	switch {
	case utils.IsDataURI(ref):
		_, data, err := utils.DecodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return decode(data)

	case blob.IsEphemeral(ref):
		if l.blobs == nil {
			return nil, fmt.Errorf("no blob resolver configured")
		}
		data, ok := l.blobs.Resolve(ref)
		if !ok {
			return nil, fmt.Errorf("blob reference no longer live")
		}
		return decode(data)

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, l.rewrite(ref))

	default:
		return nil, fmt.Errorf("unsupported image reference")
	}
}

func (l *Loader) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pngDataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func truncateRef(ref string) string {
	if len(ref) > 96 {
		return ref[:96] + "..."
	}
	return ref
}
