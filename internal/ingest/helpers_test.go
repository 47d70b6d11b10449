package ingest

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mailsink/pkg/errors"
)

// fakeRepository is an in-memory Repository with per-call failure hooks.
type fakeRepository struct {
	mu          sync.Mutex
	messages    map[string]*MessageRecord
	attachments map[string]*AttachmentRecord

	saveMessageErr    error
	saveAttachmentErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		messages:    make(map[string]*MessageRecord),
		attachments: make(map[string]*AttachmentRecord),
	}
}

func (r *fakeRepository) SaveMessage(ctx context.Context, rec *MessageRecord) error {
	if r.saveMessageErr != nil {
		return r.saveMessageErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[rec.ID] = rec
	return nil
}

func (r *fakeRepository) SaveAttachment(ctx context.Context, rec *AttachmentRecord) error {
	if r.saveAttachmentErr != nil {
		return r.saveAttachmentErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments[rec.ID] = rec
	return nil
}

func (r *fakeRepository) GetMessage(ctx context.Context, id string) (*MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.messages[id]
	if !ok {
		return nil, errors.ErrNotFound.WithMessage("message not found")
	}
	return rec, nil
}

func (r *fakeRepository) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []*AttachmentRecord
	for _, rec := range r.attachments {
		if rec.MessageID == messageID {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *fakeRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (r *fakeRepository) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *fakeRepository) attachmentByObject(messageID, object string) (*AttachmentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.attachments[messageID+"/"+object]
	return rec, ok
}

// spoolTestFile writes content to a fresh temp file, standing in for the
// decoder's spooled attachment.
func spoolTestFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "spool-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func decodedTestFile(t *testing.T, filename, contentType, content string) *DecodedFile {
	t.Helper()
	return &DecodedFile{
		Name:        "attachment-1",
		Filename:    filename,
		ContentType: contentType,
		TempPath:    spoolTestFile(t, content),
	}
}

// fixedID returns a generator that yields id-1, id-2, ... per call.
func fixedID(prefix string) IDGenerator {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
