package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/travelbooking/internal/domain"
)

type IdempotencyRepository interface {
	// Insert returns ErrDuplicateEvent when (source, event_id) already exists.
	Insert(ctx context.Context, record domain.WebhookIdempotencyRecord) error
	Delete(ctx context.Context, source domain.WebhookSource, eventID string) error
}

type PGIdempotencyRepository struct {
	db DB
}

func NewIdempotencyRepository(db DB) IdempotencyRepository {
	return &PGIdempotencyRepository{db: db}
}

func (r *PGIdempotencyRepository) Insert(ctx context.Context, record domain.WebhookIdempotencyRecord) error {
	_, err := r.db.Exec(ctx, `INSERT INTO webhook_idempotency (source, event_id, booking_id) VALUES ($1, $2, $3)`,
		record.Source, record.EventID, nullString(record.BookingID))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to insert webhook idempotency record: %w", err)
	}
	return nil
}

func (r *PGIdempotencyRepository) Delete(ctx context.Context, source domain.WebhookSource, eventID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM webhook_idempotency WHERE source=$1 AND event_id=$2`, source, eventID); err != nil {
		return fmt.Errorf("failed to delete webhook idempotency record: %w", err)
	}
	return nil
}

var _ IdempotencyRepository = (*PGIdempotencyRepository)(nil)
