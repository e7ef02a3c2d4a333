package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Archive keeps a copy of every receipt image that was read successfully.
type Archive interface {
	// Save stores data under name and returns where it was written
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// LocalArchive implements Archive using the local filesystem
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new LocalArchive instance
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &LocalArchive{
		basePath: basePath,
	}, nil
}

// Save writes the image to the archive directory
func (l *LocalArchive) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(l.basePath, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// GCSArchive implements Archive on a Cloud Storage bucket
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchive creates a client for bucket. Objects are written under
// prefix/YYYY/MM/DD/.
func NewGCSArchive(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSArchive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSArchive{client: client, bucket: bucket, prefix: prefix}, nil
}

// Save uploads the image and returns its gs:// URI
func (g *GCSArchive) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	objectName := g.objectName(time.Now(), name)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName), nil
}

// Close closes the storage client
func (g *GCSArchive) Close() error {
	return g.client.Close()
}

func (g *GCSArchive) objectName(now time.Time, name string) string {
	key := fmt.Sprintf("%s/%s", now.Format("2006/01/02"), filepath.Base(name))
	if g.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", g.prefix, key)
}
