package idempotency

import (
	"context"
	"errors"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/repository"
	"go.uber.org/zap"
)

// Guard records each upstream event once. It never reads before writing:
// the unique (source, event_id) constraint decides which delivery wins.
type Guard struct {
	records repository.IdempotencyRepository
	log     *zap.Logger
}

func NewGuard(records repository.IdempotencyRepository, log *zap.Logger) *Guard {
	return &Guard{records: records, log: log}
}

// Ensure returns OutcomeProcessed for the first delivery of (source, eventID) and
// OutcomeDuplicate for every later one. Other storage failures are returned as errors.
func (g *Guard) Ensure(ctx context.Context, source domain.WebhookSource, eventID, bookingID string) (domain.IdempotencyOutcome, error) {
	if !source.Valid() {
		return "", domain.Validation("unknown webhook source")
	}
	if eventID == "" {
		return "", domain.Validation("webhook event id is required")
	}

	err := g.records.Insert(ctx, domain.WebhookIdempotencyRecord{Source: source, EventID: eventID, BookingID: bookingID})
	switch {
	case err == nil:
		return domain.OutcomeProcessed, nil
	case errors.Is(err, repository.ErrDuplicateEvent):
		g.log.Info("duplicate webhook delivery", zap.String("source", string(source)), zap.String("event_id", eventID), zap.String("booking_id", bookingID))
		return domain.OutcomeDuplicate, nil
	default:
		return "", domain.Internal("failed to record webhook event", err)
	}
}

// Release forgets an event whose side effects could not be applied so a redelivery is processed.
func (g *Guard) Release(ctx context.Context, source domain.WebhookSource, eventID string) error {
	return g.records.Delete(ctx, source, eventID)
}
