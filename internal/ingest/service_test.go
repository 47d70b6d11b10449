package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/internal/blobstore"
	"mailsink/internal/logger"
	"mailsink/pkg/errors"
)

func newTestService(repo Repository, blobs blobstore.BlobStore, opts ...ServiceOption) Service {
	opts = append([]ServiceOption{WithIDGenerator(fixedID("msg"))}, opts...)
	return NewService(repo, blobs, testBucket, logger.NopLogger(), opts...)
}

func TestIngestCreatesOneMessageRecord(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, blobstore.NewMemoryStore())

	receipt, err := svc.Ingest(context.Background(), &DecodedRequest{
		Fields: map[string]string{
			"recipient":        "alice@example.com",
			"sender":           "bob@example.com",
			"subject":          "hello",
			"timestamp":        "1609459200",
			"attachment-count": "0",
			"X-Envelope-From":  "dropped@example.com",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", receipt.MessageID)

	require.Equal(t, 1, repo.messageCount())
	rec := repo.messages["msg-1"]
	require.NotNil(t, rec)

	assert.Equal(t, "alice@example.com", rec.Recipient)
	assert.Equal(t, "hello", rec.Subject)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, int64(1609459200), *rec.Timestamp)
	require.NotNil(t, rec.Date)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), *rec.Date)
	assert.False(t, rec.ReceivedAt.IsZero())
}

func TestIngestAllocatesFreshIdentityPerCall(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, blobstore.NewMemoryStore())

	fields := map[string]string{"recipient": "alice@example.com"}

	first, err := svc.Ingest(context.Background(), &DecodedRequest{Fields: fields})
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), &DecodedRequest{Fields: fields})
	require.NoError(t, err)

	assert.NotEqual(t, first.MessageID, second.MessageID)
	assert.Equal(t, 2, repo.messageCount())
}

func TestIngestUploadsAllAttachments(t *testing.T) {
	repo := newFakeRepository()
	blobs := blobstore.NewMemoryStore()
	svc := newTestService(repo, blobs)

	req := &DecodedRequest{
		Fields: map[string]string{"recipient": "alice@example.com"},
		Files: []*DecodedFile{
			decodedTestFile(t, "one.txt", "text/plain", "first"),
			decodedTestFile(t, "two.pdf", "application/pdf", "second"),
			decodedTestFile(t, "three.png", "image/png", "third"),
		},
	}

	receipt, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, receipt.AttachmentsUploaded)
	assert.Equal(t, 3, receipt.AttachmentsIndexed)
	assert.Equal(t, 3, blobs.ObjectCount())

	for _, filename := range []string{"one.txt", "two.pdf", "three.png"} {
		object := "alice@example.com/" + receipt.MessageID + "/" + filename
		_, ok := blobs.Object(testBucket, object)
		assert.True(t, ok, "expected object %s", object)

		rec, ok := repo.attachmentByObject(receipt.MessageID, object)
		require.True(t, ok)
		assert.Equal(t, filename, rec.Filename)
	}
}

func TestIngestRejectsMissingRecipient(t *testing.T) {
	repo := newFakeRepository()
	blobs := blobstore.NewMemoryStore()
	svc := newTestService(repo, blobs)

	req := &DecodedRequest{
		Fields: map[string]string{"subject": "no recipient"},
		Files:  []*DecodedFile{decodedTestFile(t, "a.txt", "text/plain", "x")},
	}

	_, err := svc.Ingest(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedField))

	// Rejected before any persistence.
	assert.Equal(t, 0, repo.messageCount())
	assert.Equal(t, 0, blobs.ObjectCount())
}

func TestIngestMalformedTimestampFailsIngestion(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, blobstore.NewMemoryStore())

	_, err := svc.Ingest(context.Background(), &DecodedRequest{
		Fields: map[string]string{
			"recipient": "alice@example.com",
			"timestamp": "not-a-number",
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedField))
	assert.Equal(t, 0, repo.messageCount())
}

func TestIngestRecordWriteFailureFailsIngestion(t *testing.T) {
	repo := newFakeRepository()
	repo.saveMessageErr = errors.ErrRecordWrite.WithCause(fmt.Errorf("connection reset"))
	svc := newTestService(repo, blobstore.NewMemoryStore())

	_, err := svc.Ingest(context.Background(), &DecodedRequest{
		Fields: map[string]string{"recipient": "alice@example.com"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRecordWrite))
}

func TestIngestUploadFailureFailsIngestion(t *testing.T) {
	repo := newFakeRepository()
	blobs := blobstore.NewMemoryStore()
	svc := newTestService(repo, blobs)

	req := &DecodedRequest{
		Fields: map[string]string{"recipient": "alice@example.com"},
		Files: []*DecodedFile{
			decodedTestFile(t, "good.txt", "text/plain", "fine"),
			decodedTestFile(t, "bad.txt", "text/plain", "doomed"),
		},
	}
	// Fail only the second attachment's upload.
	blobs.UploadErr["alice@example.com/msg-1/bad.txt"] = fmt.Errorf("disk full")

	_, err := svc.Ingest(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpload))

	// No attachment record exists for the failed destination path.
	_, ok := repo.attachmentByObject("msg-1", "alice@example.com/msg-1/bad.txt")
	assert.False(t, ok)
}

func TestIngestMetadataIndexFailureStillSucceeds(t *testing.T) {
	repo := newFakeRepository()
	repo.saveAttachmentErr = fmt.Errorf("attachment collection unavailable")
	blobs := blobstore.NewMemoryStore()
	svc := newTestService(repo, blobs)

	req := &DecodedRequest{
		Fields: map[string]string{"recipient": "alice@example.com"},
		Files:  []*DecodedFile{decodedTestFile(t, "a.txt", "text/plain", "x")},
	}

	receipt, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, receipt.AttachmentsUploaded)
	assert.Equal(t, 0, receipt.AttachmentsIndexed)
	assert.Equal(t, 1, repo.messageCount())
	assert.Equal(t, 1, blobs.ObjectCount())
}

func TestIngestDuplicateFilenamesShareOneObject(t *testing.T) {
	repo := newFakeRepository()
	blobs := blobstore.NewMemoryStore()
	svc := newTestService(repo, blobs)

	req := &DecodedRequest{
		Fields: map[string]string{"recipient": "alice@example.com"},
		Files: []*DecodedFile{
			decodedTestFile(t, "dup.txt", "text/plain", "first content"),
			decodedTestFile(t, "dup.txt", "text/plain", "second"),
		},
	}

	receipt, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	// Both parts target the same destination path; uploads are concurrent,
	// so one of the two bodies wins.
	assert.Equal(t, 2, receipt.AttachmentsUploaded)
	assert.Equal(t, 1, blobs.ObjectCount())
	content, ok := blobs.Object(testBucket, "alice@example.com/"+receipt.MessageID+"/dup.txt")
	require.True(t, ok)
	assert.Contains(t, []string{"first content", "second"}, string(content))
}

func TestIngestLogsAssignedIdentity(t *testing.T) {
	log, observed := logger.NewObserved()
	repo := newFakeRepository()
	svc := NewService(repo, blobstore.NewMemoryStore(), testBucket, log,
		WithIDGenerator(fixedID("msg")))

	_, err := svc.Ingest(context.Background(), &DecodedRequest{
		Fields: map[string]string{"recipient": "alice@example.com"},
	})
	require.NoError(t, err)

	entries := observed.FilterMessage("Message record saved").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "msg-1", entries[0].ContextMap()["message_id"])
}
