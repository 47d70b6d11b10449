package broker

import (
	"context"

	"mailsink/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, event models.IngestEvent) error
	Close() error
}
