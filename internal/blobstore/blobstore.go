package blobstore

import (
	"context"
	"errors"
)

var ErrObjectNotFound = errors.New("blobstore: object not found")

// ObjectMetadata describes a stored object as reported by the blob store.
type ObjectMetadata struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
}

// BlobStore is the durable object storage consumed by the ingestion
// pipeline. Implementations provide per-call atomicity; uploading to an
// existing object path replaces its content.
type BlobStore interface {
	// Upload copies the file at localPath to {bucket, object}. The caller
	// owns localPath; Upload never removes it.
	Upload(ctx context.Context, localPath, bucket, object string, contentType string) error

	// Metadata returns the stored object's metadata, or ErrObjectNotFound.
	Metadata(ctx context.Context, bucket, object string) (*ObjectMetadata, error)
}
