package ingest

import (
	"context"
	"os"
	"time"

	"mailsink/internal/blobstore"
	"mailsink/internal/logger"
	"mailsink/pkg/errors"
	"mailsink/pkg/metrics"
)

// Uploader takes one decoded file part to a persisted AttachmentRecord.
type Uploader struct {
	blobs  blobstore.BlobStore
	repo   Repository
	bucket string
	logger logger.Logger
}

func NewUploader(blobs blobstore.BlobStore, repo Repository, bucket string, log logger.Logger) *Uploader {
	return &Uploader{
		blobs:  blobs,
		repo:   repo,
		bucket: bucket,
		logger: log,
	}
}

// Process uploads the spooled file and links it to the message identity in
// prefix. The returned error covers the upload and metadata fetch; a failed
// record write is reported through the result's IndexErr only, because the
// blob already exists and is addressable even without its index entry.
//
// Same-named attachments within one request land on the same object path;
// the last write wins. The spooled temp file is removed only after a
// successful upload, so a failed upload leaves it behind for inspection.
func (u *Uploader) Process(ctx context.Context, file *DecodedFile, prefix ObjectPrefix) (*AttachmentResult, error) {
	object := prefix.Path() + "/" + file.Filename
	result := &AttachmentResult{ObjectName: object}

	start := time.Now()
	err := u.blobs.Upload(ctx, file.TempPath, u.bucket, object, file.ContentType)
	metrics.AttachmentUploadDuration.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.AttachmentUploadsTotal.WithLabelValues("upload_failed").Inc()
		u.logger.ErrorwCtx(ctx, "Attachment upload failed",
			"filename", file.Filename,
			"object", object,
			"error", err,
		)
		return result, errors.ErrUpload.
			WithDetails(map[string]interface{}{"filename": file.Filename, "object": object}).
			WithCause(err)
	}
	result.Uploaded = true

	if err := os.Remove(file.TempPath); err != nil {
		// Best-effort cleanup; the upload already succeeded.
		u.logger.WarnwCtx(ctx, "Failed to remove spooled attachment file",
			"path", file.TempPath,
			"filename", file.Filename,
			"error", err,
		)
	}

	u.logger.InfowCtx(ctx, "Attachment uploaded",
		"filename", file.Filename,
		"bucket", u.bucket,
		"object", object,
	)

	md, err := u.blobs.Metadata(ctx, u.bucket, object)
	if err != nil {
		metrics.AttachmentUploadsTotal.WithLabelValues("metadata_failed").Inc()
		u.logger.ErrorwCtx(ctx, "Attachment metadata fetch failed",
			"object", object,
			"error", err,
		)
		return result, errors.ErrUpload.
			WithMessage("failed to fetch uploaded object metadata").
			WithDetails(map[string]interface{}{"filename": file.Filename, "object": object}).
			WithCause(err)
	}

	metrics.AttachmentBytes.Observe(float64(md.Size))

	rec := &AttachmentRecord{
		ID:          prefix.MessageID + "/" + md.Name,
		MessageID:   prefix.MessageID,
		Bucket:      md.Bucket,
		Name:        md.Name,
		Filename:    file.Filename,
		ContentType: md.ContentType,
		Size:        md.Size,
		MD5:         md.MD5,
	}

	if err := u.repo.SaveAttachment(ctx, rec); err != nil {
		// Uploaded but unrecorded: recoverable, never fails the ingestion.
		result.IndexErr = errors.ErrMetadataIndex.
			WithDetails(map[string]interface{}{"filename": file.Filename, "object": object}).
			WithCause(err)
		metrics.MetadataIndexFailuresTotal.Inc()
		metrics.AttachmentUploadsTotal.WithLabelValues("index_failed").Inc()
		u.logger.ErrorwCtx(ctx, "Attachment record write failed",
			"filename", file.Filename,
			"object", object,
			"error", err,
		)
		return result, nil
	}

	result.Indexed = true
	metrics.AttachmentUploadsTotal.WithLabelValues("saved").Inc()
	u.logger.InfowCtx(ctx, "Attachment record saved",
		"filename", file.Filename,
		"attachment_id", rec.ID,
	)

	return result, nil
}
