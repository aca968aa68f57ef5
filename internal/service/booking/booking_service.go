package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/kafka"
	"github.com/Domenick1991/travelbooking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWriteAttempts = 3

const (
	EventBookingCreated       = "booking_created"
	EventBookingPaid          = "booking_paid"
	EventBookingPaymentFailed = "booking_payment_failed"
	EventBookingRefunded      = "booking_refunded"
)

// ErrInvalidTransition is returned when an outcome is not reachable from the booking's
// current payment status. Redelivering the same outcome cannot fix it.
var ErrInvalidTransition = domain.Conflict("payment status transition not allowed")

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, user domain.User, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, user domain.User, id string) (*domain.Booking, error)
	FindByPaymentReference(ctx context.Context, ref PaymentReference) (*domain.Booking, error)
	ApplyPaymentOutcome(ctx context.Context, bookingID string, outcome domain.PaymentStatus) (*domain.Booking, error)
	ProcessPaymentEvent(ctx context.Context, event PaymentEvent) (*EventResult, error)
	Refund(ctx context.Context, bookingID string) (*domain.Booking, error)
}

type Repository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByTransactionID(ctx context.Context, method domain.PaymentMethod, transactionID string) (*domain.Booking, error)
	UpdatePaymentStatus(ctx context.Context, id string, version int64, payment domain.PaymentStatus, status domain.BookingStatus) (*domain.Booking, error)
}

type Guard interface {
	Ensure(ctx context.Context, source domain.WebhookSource, eventID, bookingID string) (domain.IdempotencyOutcome, error)
	Release(ctx context.Context, source domain.WebhookSource, eventID string) error
}

// Fulfillment is invoked after a booking becomes PAID. It reports its own failures.
type Fulfillment interface {
	Attempt(ctx context.Context, booking domain.Booking)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type CreateBookingInput struct {
	BookingType     domain.BookingType  `json:"bookingType" binding:"required,oneof=TOUR FLIGHT HOTEL VISA CHARTER_PACKAGE"`
	TotalAmount     float64             `json:"totalAmount" binding:"required,gt=0"`
	Currency        string              `json:"currency" binding:"required,len=3"`
	GuestDetails    domain.GuestDetails `json:"guestDetails"`
	FlightOfferData json.RawMessage     `json:"flightOfferData,omitempty"`
}

// PaymentReference identifies the booking a provider notification is about. BookingID,
// AmountCents and Currency are read from the provider payload and are only consulted
// when TransactionID was replaced by a newer checkout. Zero values skip the check.
type PaymentReference struct {
	Method        domain.PaymentMethod
	TransactionID string
	BookingID     string
	AmountCents   int64
	Currency      string
}

// PaymentEvent is a provider notification already authenticated and parsed by a transport.
type PaymentEvent struct {
	Source    domain.WebhookSource
	EventID   string
	BookingID string
	Outcome   domain.PaymentStatus
}

type EventResult struct {
	Outcome domain.IdempotencyOutcome
	Booking *domain.Booking
}

type BookingService struct {
	bookings           Repository
	guard              Guard
	fulfillment        Fulfillment
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	now                func() time.Time
	log                *zap.Logger
}

type BookingServiceOption func(*BookingService)

func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithFulfillment(f Fulfillment) BookingServiceOption {
	return func(s *BookingService) {
		s.fulfillment = f
	}
}

func NewBookingService(bookings Repository, guard Guard, log *zap.Logger, opts ...BookingServiceOption) *BookingService {
	service := &BookingService{
		bookings: bookings,
		guard:    guard,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, user domain.User, input CreateBookingInput) (*domain.Booking, error) {
	if user.ID == "" {
		return nil, domain.Unauthorized("authentication required")
	}
	if !input.BookingType.Valid() {
		return nil, domain.Validation("unknown booking type")
	}
	if input.TotalAmount <= 0 {
		return nil, domain.Validation("total amount must be positive")
	}
	if !currencyPattern.MatchString(input.Currency) {
		return nil, domain.Validation("currency must be a three letter ISO code")
	}

	booking := &domain.Booking{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		BookingType:     input.BookingType,
		Status:          domain.BookingStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		TotalAmount:     input.TotalAmount,
		Currency:        input.Currency,
		GuestDetails:    input.GuestDetails,
		FlightOfferData: input.FlightOfferData,
	}
	if booking.GuestDetails.ContactEmail() == "" {
		booking.GuestDetails.Email = user.Email
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, domain.Internal("failed to save booking", err)
	}

	s.log.Info("booking created", zap.String("booking_id", booking.ID), zap.String("booking_type", string(booking.BookingType)))
	s.publish(ctx, EventBookingCreated, booking)
	return booking, nil
}

// GetBooking returns a booking to its owner or an admin. Other callers get not-found.
func (s *BookingService) GetBooking(ctx context.Context, user domain.User, id string) (*domain.Booking, error) {
	if user.ID == "" {
		return nil, domain.Unauthorized("authentication required")
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != user.ID && !user.IsAdmin() {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

// FindByPaymentReference resolves the booking by its current transaction reference. A
// booking re-checked-out since the provider issued the reference is found by id instead,
// provided the amount and currency still match.
func (s *BookingService) FindByPaymentReference(ctx context.Context, ref PaymentReference) (*domain.Booking, error) {
	b, err := s.bookings.GetByTransactionID(ctx, ref.Method, ref.TransactionID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal("failed to load booking", err)
	}
	if ref.BookingID == "" {
		return nil, domain.ErrBookingNotFound
	}

	b, err = s.load(ctx, ref.BookingID)
	if err != nil {
		return nil, err
	}
	if (ref.AmountCents != 0 && ref.AmountCents != b.AmountCents()) || (ref.Currency != "" && ref.Currency != b.Currency) {
		s.log.Warn("payment reference does not match booking",
			zap.String("booking_id", b.ID),
			zap.String("reference", ref.TransactionID),
			zap.Int64("amount_cents", ref.AmountCents),
			zap.String("currency", ref.Currency))
		return nil, domain.ErrBookingNotFound
	}
	s.log.Info("resolved superseded payment reference",
		zap.String("booking_id", b.ID),
		zap.String("method", string(ref.Method)),
		zap.String("reference", ref.TransactionID),
		zap.String("current_reference", b.PaymentTransactionID))
	return b, nil
}

// ApplyPaymentOutcome records a provider result, PAID or FAILED. Repeating the current
// status is a no-op. PAID confirms a pending booking and hands it to fulfillment. A PAID
// result for a FAILED payment reopens it first, since the customer retried the same order.
func (s *BookingService) ApplyPaymentOutcome(ctx context.Context, bookingID string, outcome domain.PaymentStatus) (*domain.Booking, error) {
	if err := validateProviderOutcome(outcome); err != nil {
		return nil, err
	}
	return s.apply(ctx, bookingID, outcome)
}

func (s *BookingService) apply(ctx context.Context, bookingID string, outcome domain.PaymentStatus) (*domain.Booking, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.load(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if current.PaymentStatus == outcome {
			return current, nil
		}
		path, ok := domain.PaymentPath(current.PaymentStatus, outcome)
		if !ok {
			s.log.Warn("rejected payment transition",
				zap.String("booking_id", bookingID),
				zap.String("from", string(current.PaymentStatus)),
				zap.String("to", string(outcome)))
			return nil, ErrInvalidTransition
		}

		updated, err := s.walk(ctx, current, path)
		switch {
		case err == nil:
			s.afterTransition(ctx, current.PaymentStatus, updated)
			return updated, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, domain.ErrBookingNotFound
		case !errors.Is(err, repository.ErrVersionConflict):
			return nil, domain.Internal("failed to update booking", err)
		case attempt == maxWriteAttempts:
			return nil, domain.Conflict("booking is being updated, try again")
		}
		s.log.Debug("booking version conflict, retrying", zap.String("booking_id", bookingID), zap.Int("attempt", attempt))
	}
}

// walk writes each status of path in turn, each write conditional on the previous version.
func (s *BookingService) walk(ctx context.Context, b *domain.Booking, path []domain.PaymentStatus) (*domain.Booking, error) {
	for _, next := range path {
		updated, err := s.bookings.UpdatePaymentStatus(ctx, b.ID, b.Version, next, domain.BookingStatusFor(b.Status, next))
		if err != nil {
			return nil, err
		}
		b = updated
	}
	return b, nil
}

func validateProviderOutcome(outcome domain.PaymentStatus) error {
	switch outcome {
	case domain.PaymentStatusPaid, domain.PaymentStatusFailed:
		return nil
	case domain.PaymentStatusRefunded:
		return domain.Validation("refunds are applied by an administrator")
	}
	return domain.Validation(fmt.Sprintf("unsupported payment outcome %q", outcome))
}

// ProcessPaymentEvent applies a provider notification at most once per (source, event id).
// A duplicate returns the booking untouched. When applying fails for a reason a retry
// could fix, the event record is released so the redelivery is processed.
func (s *BookingService) ProcessPaymentEvent(ctx context.Context, event PaymentEvent) (*EventResult, error) {
	if err := validateProviderOutcome(event.Outcome); err != nil {
		return nil, err
	}
	outcome, err := s.guard.Ensure(ctx, event.Source, event.EventID, event.BookingID)
	if err != nil {
		return nil, err
	}
	if outcome == domain.OutcomeDuplicate {
		return &EventResult{Outcome: outcome}, nil
	}

	updated, err := s.apply(ctx, event.BookingID, event.Outcome)
	if err != nil {
		if retryable(err) {
			if relErr := s.guard.Release(ctx, event.Source, event.EventID); relErr != nil {
				s.log.Error("failed to release webhook event",
					zap.String("source", string(event.Source)),
					zap.String("event_id", event.EventID),
					zap.Error(relErr))
			}
		}
		return nil, err
	}
	return &EventResult{Outcome: outcome, Booking: updated}, nil
}

func (s *BookingService) Refund(ctx context.Context, bookingID string) (*domain.Booking, error) {
	current, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.PaymentStatus != domain.PaymentStatusPaid && current.PaymentStatus != domain.PaymentStatusRefunded {
		return nil, domain.Conflict("only paid bookings can be refunded")
	}
	return s.apply(ctx, bookingID, domain.PaymentStatusRefunded)
}

func (s *BookingService) load(ctx context.Context, id string) (*domain.Booking, error) {
	if id == "" {
		return nil, domain.Validation("booking id is required")
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, domain.Internal("failed to load booking", err)
	}
	return b, nil
}

func (s *BookingService) afterTransition(ctx context.Context, from domain.PaymentStatus, updated *domain.Booking) {
	s.log.Info("payment status changed",
		zap.String("booking_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(updated.PaymentStatus)),
		zap.String("status", string(updated.Status)))

	switch updated.PaymentStatus {
	case domain.PaymentStatusPaid:
		if s.fulfillment != nil {
			s.fulfillment.Attempt(ctx, *updated)
		}
		s.publish(ctx, EventBookingPaid, updated)
	case domain.PaymentStatusFailed:
		s.publish(ctx, EventBookingPaymentFailed, updated)
	case domain.PaymentStatusRefunded:
		s.publish(ctx, EventBookingRefunded, updated)
	}
}

// publish never fails the caller; the booking write has already happened.
func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:          eventType,
		BookingID:     booking.ID,
		BookingType:   string(booking.BookingType),
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
		PaymentMethod: string(booking.PaymentMethod),
		Amount:        booking.TotalAmount,
		Currency:      booking.Currency,
		Email:         booking.GuestDetails.ContactEmail(),
		OccurredAt:    s.now().UTC(),
	}

	if err := s.producer.Publish(ctx, s.bookingTopic, booking.ID, event); err != nil {
		s.log.Warn("failed to publish booking event", zap.String("type", eventType), zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}
	if s.notificationsTopic != "" && eventType != EventBookingCreated {
		if err := s.producer.Publish(ctx, s.notificationsTopic, booking.ID, event); err != nil {
			s.log.Warn("failed to publish notification", zap.String("type", eventType), zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}
}

func retryable(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInternal, domain.KindConflict:
		return !errors.Is(err, ErrInvalidTransition)
	}
	return false
}

var _ BookingUseCase = (*BookingService)(nil)
