package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mailsink/internal/blobstore"
	"mailsink/internal/logger"
	"mailsink/internal/stats"
	"mailsink/pkg/errors"
	"mailsink/pkg/logging"
	"mailsink/pkg/metrics"
	"mailsink/pkg/models"
)

// IDGenerator allocates message identities. The default is uuid v4;
// tests inject a deterministic generator.
type IDGenerator func() string

type Service interface {
	// Ingest runs one end-to-end ingestion over a decoded request.
	Ingest(ctx context.Context, req *DecodedRequest) (*IngestReceipt, error)

	GetMessage(ctx context.Context, id string) (*MessageRecord, error)
	ListAttachments(ctx context.Context, messageID string) ([]*AttachmentRecord, error)
}

type serviceImpl struct {
	repo     Repository
	uploader *Uploader
	newID    IDGenerator
	producer *EventProducer
	stats    stats.Recorder
	logger   logger.Logger
}

type ServiceOption func(*serviceImpl)

func WithIDGenerator(gen IDGenerator) ServiceOption {
	return func(s *serviceImpl) {
		s.newID = gen
	}
}

func WithEventProducer(producer *EventProducer) ServiceOption {
	return func(s *serviceImpl) {
		s.producer = producer
	}
}

func WithStatsRecorder(recorder stats.Recorder) ServiceOption {
	return func(s *serviceImpl) {
		s.stats = recorder
	}
}

func NewService(repo Repository, blobs blobstore.BlobStore, bucket string, log logger.Logger, opts ...ServiceOption) Service {
	s := &serviceImpl{
		repo:     repo,
		uploader: NewUploader(blobs, repo, bucket, log),
		newID:    uuid.NewString,
		logger:   log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ingest allocates the message identity exactly once, then runs the
// message-record write and every attachment pipeline concurrently. The
// first branch error becomes the ingestion's error; later failures in other
// branches are logged by their branch but not surfaced. Metadata-index
// failures never fail the ingestion.
func (s *serviceImpl) Ingest(ctx context.Context, req *DecodedRequest) (*IngestReceipt, error) {
	start := time.Now()

	id := s.newID()
	ctx = logging.WithMessageID(ctx, id)

	recipient := req.Fields[FieldRecipient]
	if recipient == "" {
		s.observe("rejected", start)
		return nil, errors.ErrMalformedField.
			WithMessage("recipient field is required").
			WithDetails(map[string]interface{}{"field": FieldRecipient})
	}
	ctx = logging.WithRecipient(ctx, recipient)

	// Branches run to completion once started: a disconnecting caller or a
	// sibling branch failure does not abort in-flight writes.
	workCtx := context.WithoutCancel(ctx)

	prefix := ObjectPrefix{Recipient: recipient, MessageID: id}
	results := make([]*AttachmentResult, len(req.Files))

	var g errgroup.Group

	g.Go(func() error {
		return s.saveMessage(workCtx, id, req.Fields)
	})

	for i, file := range req.Files {
		g.Go(func() error {
			res, err := s.uploader.Process(workCtx, file, prefix)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.observe("failed", start)
		return nil, err
	}

	receipt := &IngestReceipt{MessageID: id}
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Uploaded {
			receipt.AttachmentsUploaded++
		}
		if res.Indexed {
			receipt.AttachmentsIndexed++
		}
	}

	s.observe("ingested", start)
	s.logger.InfowCtx(ctx, "Message ingested",
		"attachments_uploaded", receipt.AttachmentsUploaded,
		"attachments_indexed", receipt.AttachmentsIndexed,
	)

	s.notify(workCtx, req.Fields, receipt)

	return receipt, nil
}

func (s *serviceImpl) GetMessage(ctx context.Context, id string) (*MessageRecord, error) {
	return s.repo.GetMessage(ctx, id)
}

func (s *serviceImpl) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentRecord, error) {
	return s.repo.ListAttachments(ctx, messageID)
}

func (s *serviceImpl) saveMessage(ctx context.Context, id string, fields map[string]string) error {
	rec, err := ProjectFields(fields)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Field projection failed", "error", err)
		return err
	}

	rec.ID = id
	rec.ReceivedAt = time.Now().UTC()

	if err := s.repo.SaveMessage(ctx, rec); err != nil {
		s.logger.ErrorwCtx(ctx, "Message record write failed", "error", err)
		return err
	}

	s.logger.InfowCtx(ctx, "Message record saved")
	return nil
}

// notify reports the completed ingestion to the optional event broker and
// stats recorder. Both are best-effort: the stored records are already
// durable, so failures here are logged and dropped.
func (s *serviceImpl) notify(ctx context.Context, fields map[string]string, receipt *IngestReceipt) {
	now := time.Now().UTC()

	if s.producer != nil {
		event := models.IngestEvent{
			MessageID:       receipt.MessageID,
			Recipient:       fields[FieldRecipient],
			Sender:          fields[FieldSender],
			Subject:         fields[FieldSubject],
			AttachmentCount: receipt.AttachmentsUploaded,
			ReceivedAt:      now,
		}
		if err := s.producer.PublishIngested(ctx, event); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to publish ingest event", "error", err)
		}
	}

	if s.stats != nil {
		if err := s.stats.RecordIngestion(ctx, fields[FieldRecipient], now); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to record ingestion stats", "error", err)
		}
	}
}

func (s *serviceImpl) observe(status string, start time.Time) {
	metrics.IngestionsTotal.WithLabelValues(status).Inc()
	metrics.IngestionDuration.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))
}
