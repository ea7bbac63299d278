package images

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// ContentStore abstracts the bucket that holds product images.
type ContentStore interface {
	// List returns all stored keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Upload stores an image under key. Uploading a key that already
	// exists overwrites it.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// PublicURL returns the canonical serving URL for a stored key.
	PublicURL(key string) string

	// Close releases the bucket connection.
	Close() error
}

// StoreConfig configures the image bucket backend.
type StoreConfig struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string
}

// NewContentStore creates an image store based on configuration.
func NewContentStore(cfg StoreConfig) (ContentStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return openBlobStore(fmt.Sprintf("file://%s?create_dir=true", cfg.LocalDir),
			"file://"+cfg.LocalDir)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return openBlobStore(fmt.Sprintf("gs://%s", cfg.GCSBucket),
			fmt.Sprintf("https://storage.googleapis.com/%s", cfg.GCSBucket))
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		bucketURL := fmt.Sprintf("s3://%s", cfg.S3Bucket)
		params := url.Values{}
		if cfg.S3Region != "" {
			params.Set("region", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			params.Set("endpoint", cfg.S3Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			bucketURL = bucketURL + "?" + params.Encode()
		}
		return openBlobStore(bucketURL, fmt.Sprintf("s3://%s", cfg.S3Bucket))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// blobStore is the gocloud.dev-backed ContentStore shared by all backends.
type blobStore struct {
	bucket  *blob.Bucket
	baseURL string
}

func openBlobStore(bucketURL, baseURL string) (*blobStore, error) {
	bucket, err := blob.OpenBucket(context.Background(), bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &blobStore{bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// NewBucketStore wraps an already open bucket. Used by tests to back the
// store with an in-memory bucket.
func NewBucketStore(bucket *blob.Bucket, baseURL string) ContentStore {
	return &blobStore{bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *blobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *blobStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

func (s *blobStore) PublicURL(key string) string {
	return s.baseURL + "/" + key
}

func (s *blobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
