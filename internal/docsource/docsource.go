// Package docsource fetches document bytes from their source reference:
// a local path or a GCS URI.
package docsource

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/finbase/receipt-insights/internal/extraction"
)

// Source resolves a source reference into a Document ready for
// extraction.
type Source interface {
	Fetch(ctx context.Context, sourceRef string) (extraction.Document, error)
}

// Local reads documents from the local filesystem.
type Local struct{}

// Fetch implements Source.
func (Local) Fetch(ctx context.Context, sourceRef string) (extraction.Document, error) {
	data, err := os.ReadFile(sourceRef)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("read document %s: %w", sourceRef, err)
	}
	return extraction.Document{
		SourceRef: sourceRef,
		MIMEType:  mimeFromName(sourceRef),
		Data:      data,
	}, nil
}

// GCS reads documents from Google Cloud Storage URIs of the form
// "gs://bucket/object".
type GCS struct{}

// Fetch implements Source.
func (GCS) Fetch(ctx context.Context, sourceRef string) (extraction.Document, error) {
	bucket, object, err := splitGCSURI(sourceRef)
	if err != nil {
		return extraction.Document{}, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("read GCS object: %w", err)
	}

	return extraction.Document{
		SourceRef: sourceRef,
		MIMEType:  mimeFromName(object),
		Data:      data,
	}, nil
}

// ForRef picks the source implementation matching a reference.
func ForRef(sourceRef string) Source {
	if strings.HasPrefix(sourceRef, "gs://") {
		return GCS{}
	}
	return Local{}
}

// Uploader stores uploaded document bytes and returns the source
// reference ingestion will use.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// GCSUploader writes uploaded documents into a GCS bucket.
type GCSUploader struct {
	Bucket string
}

// Upload implements Uploader.
func (u GCSUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	w := client.Bucket(u.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = mimeFromName(name)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write GCS object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize GCS object: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", u.Bucket, name), nil
}

// LocalUploader writes uploaded documents under a directory. Used when no
// bucket is configured.
type LocalUploader struct {
	Dir string
}

// Upload implements Uploader.
func (u LocalUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(u.Dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return dst, nil
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI %q", uri)
	}
	return parts[0], parts[1], nil
}

func mimeFromName(name string) string {
	if m := mime.TypeByExtension(path.Ext(name)); m != "" {
		return m
	}
	return "application/octet-stream"
}
