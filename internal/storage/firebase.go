package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirebaseStorage uploads design photos and order artifacts to a Firebase
// Cloud Storage bucket and serves them through public URLs.
type FirebaseStorage struct {
	bucket     *gcs.BucketHandle
	bucketName string
}

// NewFirebaseStorage initializes the storage client. It first attempts to
// use credentials from the FIREBASE_SERVICE_ACCOUNT_JSON environment
// variable (Base64 encoded). If that's not found, it falls back to a local
// service account key file.
func NewFirebaseStorage(localFilePath, bucketName string) (*FirebaseStorage, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("storage bucket name is required")
	}

	var opt option.ClientOption
	encodedCreds := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials from FIREBASE_SERVICE_ACCOUNT_JSON: %v", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("Storage: Initializing from FIREBASE_SERVICE_ACCOUNT_JSON environment variable.")
	} else {
		if _, err := os.Stat(localFilePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase file not found: %s, and FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set", localFilePath)
		}
		opt = option.WithCredentialsFile(localFilePath)
		log.Printf("Storage: Initializing from local file: %s.", localFilePath)
	}

	app, err := firebase.NewApp(context.Background(), &firebase.Config{StorageBucket: bucketName}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Storage(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error getting storage client: %v", err)
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("error getting default bucket: %v", err)
	}

	return &FirebaseStorage{bucket: bucket, bucketName: bucketName}, nil
}

func (s *FirebaseStorage) Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	obj := s.bucket.Object(objectPath)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", objectPath, err)
	}

	if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
		// Uniform bucket-level access rejects per-object ACLs; the bucket is
		// public in that configuration, so the URL below still resolves.
		log.Printf("Storage: could not set public ACL on %s: %v", objectPath, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, escapePath(objectPath)), nil
}

func (s *FirebaseStorage) Delete(ctx context.Context, objectPath string) bool {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.bucket.Object(objectPath).Delete(ctx); err != nil {
		log.Printf("Storage: delete %s failed: %v", objectPath, err)
		return false
	}
	return true
}

// ObjectPathFromURL extracts the object path from a public URL issued by
// Upload. Returns "" for URLs this bucket did not issue.
func (s *FirebaseStorage) ObjectPathFromURL(publicURL string) string {
	prefix := fmt.Sprintf("https://storage.googleapis.com/%s/", s.bucketName)
	if !strings.HasPrefix(publicURL, prefix) {
		return ""
	}
	path, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil {
		return ""
	}
	return path
}

func escapePath(objectPath string) string {
	parts := strings.Split(objectPath, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
