package ingest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsink/internal/blobstore"
	"mailsink/internal/logger"
)

func newTestRouter(t *testing.T, repo Repository, blobs blobstore.BlobStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(repo, blobs)
	handler := NewHandler(svc, logger.NopLogger(), t.TempDir(), 0)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for filename, content := range files {
		part, err := writer.CreateFormFile("attachment-1", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestIngestEndpointPersistsMessageAndAttachments(t *testing.T) {
	repo := newFakeRepository()
	blobs := blobstore.NewMemoryStore()
	router := newTestRouter(t, repo, blobs)

	body, contentType := multipartBody(t,
		map[string]string{
			"recipient": "alice@example.com",
			"sender":    "bob@example.com",
			"subject":   "hi",
		},
		map[string]string{"notes.txt": "attached notes"},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var receipt IngestReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, "msg-1", receipt.MessageID)
	assert.Equal(t, 1, receipt.AttachmentsUploaded)

	assert.Equal(t, 1, repo.messageCount())
	_, ok := blobs.Object(testBucket, "alice@example.com/msg-1/notes.txt")
	assert.True(t, ok)
}

func TestIngestEndpointRejectsMalformedMultipart(t *testing.T) {
	repo := newFakeRepository()
	router := newTestRouter(t, repo, blobstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "DECODE_ERROR", resp["error_code"])

	// Aborted before any side effect.
	assert.Equal(t, 0, repo.messageCount())
}

func TestIngestEndpointRejectsMissingRecipient(t *testing.T) {
	repo := newFakeRepository()
	router := newTestRouter(t, repo, blobstore.NewMemoryStore())

	body, contentType := multipartBody(t, map[string]string{"subject": "hi"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "MALFORMED_FIELD", resp["error_code"])
}

func TestIngestEndpointMalformedTimestamp(t *testing.T) {
	repo := newFakeRepository()
	router := newTestRouter(t, repo, blobstore.NewMemoryStore())

	body, contentType := multipartBody(t, map[string]string{
		"recipient": "alice@example.com",
		"timestamp": "not-a-number",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMessageEndpoint(t *testing.T) {
	repo := newFakeRepository()
	repo.messages["msg-9"] = &MessageRecord{ID: "msg-9", Recipient: "alice@example.com"}
	router := newTestRouter(t, repo, blobstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/msg-9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rec MessageRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "alice@example.com", rec.Recipient)
}

func TestGetMessageEndpointNotFound(t *testing.T) {
	router := newTestRouter(t, newFakeRepository(), blobstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAttachmentsEndpoint(t *testing.T) {
	repo := newFakeRepository()
	repo.attachments["msg-9/a"] = &AttachmentRecord{ID: "msg-9/a", MessageID: "msg-9", Filename: "a.txt"}
	repo.attachments["msg-9/b"] = &AttachmentRecord{ID: "msg-9/b", MessageID: "msg-9", Filename: "b.txt"}
	repo.attachments["other/c"] = &AttachmentRecord{ID: "other/c", MessageID: "other", Filename: "c.txt"}
	router := newTestRouter(t, repo, blobstore.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/msg-9/attachments", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var records []*AttachmentRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}
