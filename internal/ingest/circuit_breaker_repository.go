package ingest

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"mailsink/internal/config"
	"mailsink/pkg/circuitbreaker"
	"mailsink/pkg/errors"
)

// CircuitBreakerRepository guards record-store writes with a breaker so a
// down store fails fast instead of queueing requests. It never retries and
// is a passthrough when disabled.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{
			repo: repo,
			cb:   nil,
		}
	}

	cbConfig := circuitbreaker.DefaultConfig("record-store")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) SaveMessage(ctx context.Context, rec *MessageRecord) error {
	return r.execute(ctx, func() error {
		return r.repo.SaveMessage(ctx, rec)
	})
}

func (r *CircuitBreakerRepository) SaveAttachment(ctx context.Context, rec *AttachmentRecord) error {
	return r.execute(ctx, func() error {
		return r.repo.SaveAttachment(ctx, rec)
	})
}

func (r *CircuitBreakerRepository) GetMessage(ctx context.Context, id string) (*MessageRecord, error) {
	return r.repo.GetMessage(ctx, id)
}

func (r *CircuitBreakerRepository) ListAttachments(ctx context.Context, messageID string) ([]*AttachmentRecord, error) {
	return r.repo.ListAttachments(ctx, messageID)
}

func (r *CircuitBreakerRepository) EnsureIndexes(ctx context.Context) error {
	return r.repo.EnsureIndexes(ctx)
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	if r.cb == nil {
		return false
	}
	return r.cb.IsOpen()
}

func (r *CircuitBreakerRepository) execute(ctx context.Context, fn func() error) error {
	if r.cb == nil {
		return fn()
	}

	_, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, fn()
	})

	if err != nil && r.cb.IsOpen() {
		// Keep the taxonomy intact for callers matching on RECORD_WRITE.
		return errors.ErrRecordWrite.WithCause(fmt.Errorf("circuit breaker is open for record-store: %w", err))
	}
	return err
}
