// Package ingest accepts a user-selected photo, shows it on the canvas
// immediately under an ephemeral blob reference, and settles it into a
// durable storage URL in the background.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"printcraftAPI/internal/blob"
	"printcraftAPI/internal/design"
	"printcraftAPI/internal/storage"
	"printcraftAPI/utils"
)

const (
	// Compression thresholds: anything over 1MB or 1920px on its longest
	// side is resampled and re-encoded before upload.
	maxUploadBytes = 1 << 20
	maxUploadPixel = 1920

	backgroundBlurSigma = 10
)

// Ingestor runs the ingestion pipeline for one design session.
type Ingestor struct {
	store      *design.Store
	blobs      *blob.Registry
	uploader   storage.Uploader
	background *design.Background
	canvasW    float64
	canvasH    float64
	pathPrefix string
}

func New(store *design.Store, blobs *blob.Registry, uploader storage.Uploader, background *design.Background, canvasW, canvasH float64, pathPrefix string) *Ingestor {
	return &Ingestor{
		store:      store,
		blobs:      blobs,
		uploader:   uploader,
		background: background,
		canvasW:    canvasW,
		canvasH:    canvasH,
		pathPrefix: pathPrefix,
	}
}

// Ingest inserts an optimistic placeholder element synchronously and settles
// it asynchronously. The returned channel reports the outcome of the upload
// leg; callers that don't care may ignore it.
//
// The placeholder's blob reference doubles as the attempt tag: a completion
// only applies its result if the element still exists and still carries the
// reference this attempt created, so a deleted or replaced element is never
// resurrected by a late upload.
func (i *Ingestor) Ingest(ctx context.Context, data []byte) (string, <-chan error, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("unreadable image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", nil, fmt.Errorf("image has no pixels")
	}

	width, height, x, y := ContainFit(float64(cfg.Width), float64(cfg.Height), i.canvasW, i.canvasH)

	ref := i.blobs.Create(data)
	el := &design.Element{
		ID:     design.NewElementID(),
		Type:   design.TypeImage,
		Value:  ref,
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
	// Synchronous insert: the user sees the photo before any byte leaves
	// the process. Any previous image element is replaced here.
	i.store.Add(el)

	needsBlur := width < i.canvasW-0.5 || height < i.canvasH-0.5

	done := make(chan error, 1)
	go func() {
		// The upload outlives the request that started it; detach from the
		// caller's cancellation but keep a bound of our own.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		done <- i.settle(sctx, el.ID, ref, data, needsBlur)
	}()
	return el.ID, done, nil
}

func (i *Ingestor) settle(ctx context.Context, elementID, ref string, original []byte, needsBlur bool) error {
	payload, contentType, decoded, err := Compress(original)
	if err != nil {
		i.abandon(elementID, ref)
		return fmt.Errorf("compression failed: %w", err)
	}

	objectPath := fmt.Sprintf("%s/%s%s", i.pathPrefix, uuid.New().String(), extensionFor(contentType))
	url, err := i.uploader.Upload(ctx, payload, contentType, objectPath)
	if err != nil || url == "" {
		i.abandon(elementID, ref)
		if err == nil {
			err = fmt.Errorf("storage returned no URL")
		}
		return fmt.Errorf("upload failed: %w", err)
	}

	if !i.stillCurrent(elementID, ref) {
		// The element was deleted or replaced while the upload ran. Discard
		// the result; the object it created is removed so it doesn't leak.
		i.uploader.Delete(context.Background(), objectPath)
		return nil
	}

	i.store.Update(elementID, design.Patch{Value: design.String(url)})
	i.blobs.Release(ref)

	if needsBlur {
		i.deriveBlurredBackground(decoded)
	} else {
		// The photo covers the whole canvas; nothing should peek around it.
		i.background.Clear()
	}
	return nil
}

// abandon removes the placeholder after a failed upload: the user is left
// with no element rather than a permanently stuck one. Deleting through the
// store releases the blob reference exactly once.
func (i *Ingestor) abandon(elementID, ref string) {
	if i.stillCurrent(elementID, ref) {
		i.store.Delete(elementID)
	}
}

func (i *Ingestor) stillCurrent(elementID, ref string) bool {
	el, ok := i.store.Get(elementID)
	return ok && el.Value == ref
}

// deriveBlurredBackground bakes the uploaded photo into a full-canvas
// blurred backdrop and stores it in the background's blurred slot.
func (i *Ingestor) deriveBlurredBackground(src image.Image) {
	stretched := imaging.Resize(src, int(i.canvasW), int(i.canvasH), imaging.Lanczos)
	blurred := imaging.Blur(stretched, backgroundBlurSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, blurred, imaging.PNG); err != nil {
		log.Printf("ingest: blurred background encode failed: %v", err)
		return
	}
	i.background.SetBlurred(utils.EncodeDataURI("image/png", buf.Bytes()))
}

// ContainFit scales a source image into the canvas preserving aspect ratio:
// the larger relative dimension matches the canvas and the other axis is
// centered.
func ContainFit(srcW, srcH, canvasW, canvasH float64) (width, height, x, y float64) {
	scale := math.Min(canvasW/srcW, canvasH/srcH)
	width = srcW * scale
	height = srcH * scale
	x = (canvasW - width) / 2
	y = (canvasH - height) / 2
	return width, height, x, y
}

// Compress resamples and re-encodes an image that exceeds the upload
// thresholds. Images already under both limits pass through untouched. The
// decoded pixels are returned alongside so callers can derive the blurred
// background without decoding twice.
func Compress(data []byte) ([]byte, string, image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", nil, err
	}

	bounds := img.Bounds()
	longest := bounds.Dx()
	if bounds.Dy() > longest {
		longest = bounds.Dy()
	}
	if len(data) <= maxUploadBytes && longest <= maxUploadPixel {
		return data, contentTypeFor(format, data), img, nil
	}

	if longest > maxUploadPixel {
		img = imaging.Fit(img, maxUploadPixel, maxUploadPixel, imaging.Lanczos)
	}

	for quality := 85; quality >= 40; quality -= 10 {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, "", nil, err
		}
		if buf.Len() <= maxUploadBytes || quality == 40 {
			return buf.Bytes(), "image/jpeg", img, nil
		}
	}
	// Unreachable: the loop always returns at quality 40.
	return nil, "", nil, fmt.Errorf("could not compress image under %d bytes", maxUploadBytes)
}

func contentTypeFor(format string, data []byte) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	}
	return http.DetectContentType(data)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
