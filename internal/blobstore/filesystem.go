package blobstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const metaSuffix = ".meta.json"

// FilesystemStore keeps each bucket as a directory under a configured root
// and each object as a file below its bucket. Content type and checksum are
// recorded in a sidecar next to the object because the filesystem cannot
// report them itself.
type FilesystemStore struct {
	root string
}

type sidecar struct {
	ContentType string `json:"contentType"`
	MD5         string `json:"md5"`
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blobstore: root directory not specified")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: failed to create root %s: %w", root, err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) Upload(ctx context.Context, localPath, bucket, object, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	objectPath, err := s.objectPath(bucket, object)
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("blobstore: failed to open source %s: %w", localPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return fmt.Errorf("blobstore: failed to create object directory: %w", err)
	}

	// Truncates any existing object at this path: same-name uploads are
	// last-write-wins.
	dst, err := os.Create(objectPath)
	if err != nil {
		return fmt.Errorf("blobstore: failed to create object %s: %w", object, err)
	}

	hasher := md5.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), src); err != nil {
		_ = dst.Close()
		_ = os.Remove(objectPath)
		return fmt.Errorf("blobstore: failed to write object %s: %w", object, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(objectPath)
		return fmt.Errorf("blobstore: failed to close object %s: %w", object, err)
	}

	meta := sidecar{
		ContentType: contentType,
		MD5:         hex.EncodeToString(hasher.Sum(nil)),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("blobstore: failed to encode sidecar for %s: %w", object, err)
	}
	if err := os.WriteFile(objectPath+metaSuffix, raw, 0o644); err != nil {
		return fmt.Errorf("blobstore: failed to write sidecar for %s: %w", object, err)
	}

	return nil
}

func (s *FilesystemStore) Metadata(ctx context.Context, bucket, object string) (*ObjectMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectPath, err := s.objectPath(bucket, object)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(objectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("blobstore: failed to stat object %s: %w", object, err)
	}

	md := &ObjectMetadata{
		Bucket: bucket,
		Name:   object,
		Size:   info.Size(),
	}

	raw, err := os.ReadFile(objectPath + metaSuffix)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("blobstore: failed to read sidecar for %s: %w", object, err)
		}
		return md, nil
	}

	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("blobstore: corrupt sidecar for %s: %w", object, err)
	}
	md.ContentType = meta.ContentType
	md.MD5 = meta.MD5

	return md, nil
}

// Check probes the store for the health endpoint.
func (s *FilesystemStore) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("blobstore: root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blobstore: root %s is not a directory", s.root)
	}
	return nil
}

func (s *FilesystemStore) objectPath(bucket, object string) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("blobstore: bucket not specified")
	}
	if object == "" {
		return "", fmt.Errorf("blobstore: object name not specified")
	}

	cleaned := filepath.Join(s.root, bucket, filepath.FromSlash(object))
	// Object names come from client-supplied filenames; refuse anything
	// that escapes the bucket directory.
	bucketRoot := filepath.Join(s.root, bucket)
	if cleaned != bucketRoot && !strings.HasPrefix(cleaned, bucketRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("blobstore: object name %q escapes bucket", object)
	}

	return cleaned, nil
}
