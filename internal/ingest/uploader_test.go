package ingest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/internal/blobstore"
	"mailsink/internal/logger"
	"mailsink/pkg/errors"
)

const testBucket = "inbound-mail"

func newTestUploader(t *testing.T) (*Uploader, *blobstore.MemoryStore, *fakeRepository) {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	repo := newFakeRepository()
	return NewUploader(blobs, repo, testBucket, logger.NopLogger()), blobs, repo
}

func TestProcessUploadsAndRecords(t *testing.T) {
	uploader, blobs, repo := newTestUploader(t)
	prefix := ObjectPrefix{Recipient: "alice@example.com", MessageID: "msg-1"}
	file := decodedTestFile(t, "report.pdf", "application/pdf", "pdf bytes")

	result, err := uploader.Process(context.Background(), file, prefix)
	require.NoError(t, err)

	assert.True(t, result.Uploaded)
	assert.True(t, result.Indexed)
	assert.NoError(t, result.IndexErr)
	assert.Equal(t, "alice@example.com/msg-1/report.pdf", result.ObjectName)

	content, ok := blobs.Object(testBucket, "alice@example.com/msg-1/report.pdf")
	require.True(t, ok)
	assert.Equal(t, "pdf bytes", string(content))

	rec, ok := repo.attachmentByObject("msg-1", "alice@example.com/msg-1/report.pdf")
	require.True(t, ok)
	assert.Equal(t, "msg-1", rec.MessageID)
	assert.Equal(t, testBucket, rec.Bucket)
	assert.Equal(t, "report.pdf", rec.Filename)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.Equal(t, int64(len("pdf bytes")), rec.Size)
	assert.NotEmpty(t, rec.MD5)

	// Spooled file is cleaned up after a successful upload.
	_, err = os.Stat(file.TempPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessUploadFailureLeavesSpooledFile(t *testing.T) {
	uploader, blobs, repo := newTestUploader(t)
	blobs.UploadErr[""] = fmt.Errorf("bucket unavailable")

	file := decodedTestFile(t, "report.pdf", "application/pdf", "pdf bytes")
	prefix := ObjectPrefix{Recipient: "alice@example.com", MessageID: "msg-1"}

	result, err := uploader.Process(context.Background(), file, prefix)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpload))
	assert.False(t, result.Uploaded)

	// No record for the failed destination path.
	_, ok := repo.attachmentByObject("msg-1", "alice@example.com/msg-1/report.pdf")
	assert.False(t, ok)

	// The spooled file is only removed on success.
	_, statErr := os.Stat(file.TempPath)
	assert.NoError(t, statErr)
}

func TestProcessMetadataFetchFailureFailsUpload(t *testing.T) {
	uploader, blobs, repo := newTestUploader(t)
	blobs.MetadataErr[""] = fmt.Errorf("metadata service down")

	file := decodedTestFile(t, "a.txt", "text/plain", "x")
	prefix := ObjectPrefix{Recipient: "r@example.com", MessageID: "msg-1"}

	result, err := uploader.Process(context.Background(), file, prefix)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpload))
	assert.True(t, result.Uploaded)
	assert.False(t, result.Indexed)

	_, ok := repo.attachmentByObject("msg-1", "r@example.com/msg-1/a.txt")
	assert.False(t, ok)

	// Upload itself succeeded, so the spooled file is gone.
	_, statErr := os.Stat(file.TempPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessIndexFailureDoesNotFailUpload(t *testing.T) {
	uploader, blobs, repo := newTestUploader(t)
	repo.saveAttachmentErr = fmt.Errorf("record store rejected write")

	file := decodedTestFile(t, "a.txt", "text/plain", "x")
	prefix := ObjectPrefix{Recipient: "r@example.com", MessageID: "msg-1"}

	result, err := uploader.Process(context.Background(), file, prefix)
	require.NoError(t, err)

	assert.True(t, result.Uploaded)
	assert.False(t, result.Indexed)
	require.Error(t, result.IndexErr)
	assert.True(t, errors.Is(result.IndexErr, errors.ErrMetadataIndex))

	// The blob exists even though its metadata record does not.
	_, ok := blobs.Object(testBucket, "r@example.com/msg-1/a.txt")
	assert.True(t, ok)
}

func TestProcessSameFilenameIsLastWriteWins(t *testing.T) {
	uploader, blobs, _ := newTestUploader(t)
	prefix := ObjectPrefix{Recipient: "r@example.com", MessageID: "msg-1"}

	first := decodedTestFile(t, "dup.txt", "text/plain", "first content")
	second := decodedTestFile(t, "dup.txt", "text/plain", "second")

	_, err := uploader.Process(context.Background(), first, prefix)
	require.NoError(t, err)
	_, err = uploader.Process(context.Background(), second, prefix)
	require.NoError(t, err)

	assert.Equal(t, 1, blobs.ObjectCount())
	content, ok := blobs.Object(testBucket, "r@example.com/msg-1/dup.txt")
	require.True(t, ok)
	assert.Equal(t, "second", string(content))
}

func TestProcessZeroByteFile(t *testing.T) {
	uploader, _, repo := newTestUploader(t)
	prefix := ObjectPrefix{Recipient: "r@example.com", MessageID: "msg-1"}

	file := decodedTestFile(t, "empty.bin", "", "")

	result, err := uploader.Process(context.Background(), file, prefix)
	require.NoError(t, err)
	assert.True(t, result.Uploaded)

	rec, ok := repo.attachmentByObject("msg-1", "r@example.com/msg-1/empty.bin")
	require.True(t, ok)
	assert.Equal(t, int64(0), rec.Size)
	assert.Empty(t, rec.ContentType)
}
