package ingest

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailsink/internal/constants"
	"mailsink/pkg/errors"
)

// Repository is the record store consumed by the ingestion pipeline. Write
// failures are wrapped with their taxonomy code and never retried.
type Repository interface {
	SaveMessage(ctx context.Context, rec *MessageRecord) error
	SaveAttachment(ctx context.Context, rec *AttachmentRecord) error
	GetMessage(ctx context.Context, id string) (*MessageRecord, error)
	ListAttachments(ctx context.Context, messageID string) ([]*AttachmentRecord, error)
	EnsureIndexes(ctx context.Context) error
}

type MongoDBRepository struct {
	messages    *mongo.Collection
	attachments *mongo.Collection
}

func NewRepository(db *mongo.Database, messageKind, attachmentKind string) Repository {
	if messageKind == "" {
		messageKind = constants.MessageCollection
	}
	if attachmentKind == "" {
		attachmentKind = constants.AttachmentCollection
	}
	return &MongoDBRepository{
		messages:    db.Collection(messageKind),
		attachments: db.Collection(attachmentKind),
	}
}

func (r *MongoDBRepository) SaveMessage(ctx context.Context, rec *MessageRecord) error {
	if _, err := r.messages.InsertOne(ctx, rec); err != nil {
		return errors.ErrRecordWrite.WithCause(err)
	}
	return nil
}

func (r *MongoDBRepository) SaveAttachment(ctx context.Context, rec *AttachmentRecord) error {
	// Upsert keyed on the derived identity: a same-named attachment in one
	// request replaces the earlier record, matching the blob layer's
	// last-write-wins behavior.
	opts := options.Replace().SetUpsert(true)
	if _, err := r.attachments.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, opts); err != nil {
		return errors.ErrRecordWrite.WithCause(err)
	}
	return nil
}

func (r *MongoDBRepository) GetMessage(ctx context.Context, id string) (*MessageRecord, error) {
	var rec MessageRecord
	err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrNotFound.WithMessage("message not found")
	}
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	return &rec, nil
}

func (r *MongoDBRepository) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(constants.MaxListLimit)

	cursor, err := r.attachments.Find(ctx, bson.M{"message-id": messageID}, opts)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	defer cursor.Close(ctx)

	var records []*AttachmentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	return records, nil
}

// EnsureIndexes builds the queryable indexes. The large free-text message
// fields are deliberately absent: they are stored as opaque payload only.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient", Value: 1}}},
		{Keys: bson.D{{Key: "sender", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
	if _, err := r.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	attachmentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "message-id", Value: 1}}},
	}
	if _, err := r.attachments.Indexes().CreateMany(ctx, attachmentIndexes); err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	return nil
}
