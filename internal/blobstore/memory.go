package blobstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
)

// MemoryStore is an in-process BlobStore used by tests. Failure hooks let
// tests force upload or metadata errors per object.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]ObjectMetadata

	// UploadErr and MetadataErr, when set, fail the matching call for the
	// given object name (or every object when the map value for "" is set).
	UploadErr   map[string]error
	MetadataErr map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:     make(map[string][]byte),
		meta:        make(map[string]ObjectMetadata),
		UploadErr:   make(map[string]error),
		MetadataErr: make(map[string]error),
	}
}

func (s *MemoryStore) Upload(ctx context.Context, localPath, bucket, object, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.hookErr(s.UploadErr, object); err != nil {
		return err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("blobstore: failed to read source %s: %w", localPath, err)
	}

	sum := md5.Sum(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucket + "/" + object
	s.objects[key] = content
	s.meta[key] = ObjectMetadata{
		Bucket:      bucket,
		Name:        object,
		ContentType: contentType,
		Size:        int64(len(content)),
		MD5:         hex.EncodeToString(sum[:]),
	}
	return nil
}

func (s *MemoryStore) Metadata(ctx context.Context, bucket, object string) (*ObjectMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.hookErr(s.MetadataErr, object); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.meta[bucket+"/"+object]
	if !ok {
		return nil, ErrObjectNotFound
	}
	out := md
	return &out, nil
}

// Object returns the stored content for assertions.
func (s *MemoryStore) Object(bucket, object string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.objects[bucket+"/"+object]
	return content, ok
}

// ObjectCount reports how many objects the store holds.
func (s *MemoryStore) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *MemoryStore) hookErr(hooks map[string]error, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := hooks[object]; ok {
		return err
	}
	if err, ok := hooks[""]; ok {
		return err
	}
	return nil
}
