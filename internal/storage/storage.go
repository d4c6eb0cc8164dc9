package storage

import "context"

// Uploader is the binary storage collaborator the canvas engine depends on.
// Upload returns a durable public URL; Delete is best-effort and reports
// success as a bool so callers can log and move on.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error)
	Delete(ctx context.Context, objectPath string) bool
}
