// Package fulfillment finalizes paid bookings with third-party suppliers.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"go.uber.org/zap"
)

// MaxRetries bounds supplier order attempts per booking.
const MaxRetries = 5

const (
	SupplierStatusCreated = "CREATED"
	SupplierStatusFailed  = "FAILED"
	SupplierStatusSkipped = "SKIPPED"
)

var ErrNoFulfiller = errors.New("no fulfiller registered for booking type")

type OrderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	PNR     string `json:"pnr,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Fulfiller places a supplier order for one booking type.
type Fulfiller interface {
	CreateOrder(ctx context.Context, booking domain.Booking) (OrderResult, error)
}

type FulfillerFunc func(ctx context.Context, booking domain.Booking) (OrderResult, error)

func (f FulfillerFunc) CreateOrder(ctx context.Context, booking domain.Booking) (OrderResult, error) {
	return f(ctx, booking)
}

// FlightFulfiller stands in for the retired flight supplier integration. It
// reports success without creating an order.
type FlightFulfiller struct{}

func (FlightFulfiller) CreateOrder(context.Context, domain.Booking) (OrderResult, error) {
	return OrderResult{Success: true}, nil
}

type Repository interface {
	RecordSupplierOrder(ctx context.Context, id, orderID, supplierStatus string) error
	IncrementSupplierRetry(ctx context.Context, id, supplierStatus string) error
	ListRetryCandidates(ctx context.Context, bookingType domain.BookingType, maxRetries, limit int) ([]domain.Booking, error)
}

type Service struct {
	repo       Repository
	fulfillers map[domain.BookingType]Fulfiller
	log        *zap.Logger
}

type Option func(*Service)

// WithFulfiller registers f for bookings of type t, replacing any earlier registration.
func WithFulfiller(t domain.BookingType, f Fulfiller) Option {
	return func(s *Service) {
		s.fulfillers[t] = f
	}
}

// NewService registers FlightFulfiller for flights unless an option overrides it.
func NewService(repo Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		fulfillers: map[domain.BookingType]Fulfiller{domain.BookingTypeFlight: FlightFulfiller{}},
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) RequiresFulfillment(t domain.BookingType) bool {
	_, ok := s.fulfillers[t]
	return ok
}

// IsEligibleForRetry reports whether booking may get another supplier order attempt.
func (s *Service) IsEligibleForRetry(booking domain.Booking) bool {
	return booking.PaymentStatus == domain.PaymentStatusPaid &&
		s.RequiresFulfillment(booking.BookingType) &&
		booking.SupplierOrderID == "" &&
		booking.SupplierRetryCount < MaxRetries
}

// CreateSupplierOrderForBooking calls the fulfiller for the booking type. Failures are
// reported in the result rather than as an error.
func (s *Service) CreateSupplierOrderForBooking(ctx context.Context, booking domain.Booking) OrderResult {
	f, ok := s.fulfillers[booking.BookingType]
	if !ok {
		return OrderResult{Success: false, Error: ErrNoFulfiller.Error()}
	}
	res, err := f.CreateOrder(ctx, booking)
	if err != nil {
		return OrderResult{Success: false, Error: err.Error()}
	}
	return res
}

// Attempt runs one fulfillment try and persists its outcome. Booking types without
// a fulfiller and bookings that are not eligible are left untouched.
func (s *Service) Attempt(ctx context.Context, booking domain.Booking) {
	if !s.IsEligibleForRetry(booking) {
		return
	}

	res := s.CreateSupplierOrderForBooking(ctx, booking)
	log := s.log.With(zap.String("booking_id", booking.ID), zap.String("booking_type", string(booking.BookingType)))

	var err error
	switch {
	case res.Success && res.OrderID != "":
		err = s.repo.RecordSupplierOrder(ctx, booking.ID, res.OrderID, SupplierStatusCreated)
		log.Info("supplier order created", zap.String("order_id", res.OrderID), zap.String("pnr", res.PNR))
	case res.Success:
		err = s.repo.IncrementSupplierRetry(ctx, booking.ID, SupplierStatusSkipped)
		log.Debug("supplier order skipped")
	default:
		err = s.repo.IncrementSupplierRetry(ctx, booking.ID, SupplierStatusFailed)
		log.Warn("supplier order failed", zap.String("error", res.Error), zap.Int("attempt", booking.SupplierRetryCount+1))
	}
	if err != nil {
		log.Error("failed to persist fulfillment outcome", zap.Error(err))
	}
}

// Sweep retries fulfillment for up to limit candidates of every registered type.
// It returns the number of bookings attempted.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	attempted := 0
	for t := range s.fulfillers {
		candidates, err := s.repo.ListRetryCandidates(ctx, t, MaxRetries, limit)
		if err != nil {
			return attempted, fmt.Errorf("list %s retry candidates: %w", t, err)
		}
		for _, b := range candidates {
			if ctx.Err() != nil {
				return attempted, ctx.Err()
			}
			if !s.IsEligibleForRetry(b) {
				continue
			}
			s.Attempt(ctx, b)
			attempted++
		}
	}
	return attempted, nil
}
