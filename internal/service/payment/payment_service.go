package payment

import (
	"context"
	"errors"

	"github.com/Domenick1991/travelbooking/internal/cache"
	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/gateway/bank"
	"github.com/Domenick1991/travelbooking/internal/gateway/paymob"
	"github.com/Domenick1991/travelbooking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWriteAttempts = 3

const bankTransferMessage = "Bank transfer instructions generated. Your booking is confirmed once the transfer is received."

type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	SetPaymentSession(ctx context.Context, id string, version int64, method domain.PaymentMethod, transactionID string) (*domain.Booking, error)
}

type CheckoutGateway interface {
	CreateIframeSession(ctx context.Context, req paymob.SessionRequest) (*paymob.Session, error)
}

type SessionCache interface {
	GetCheckoutSession(ctx context.Context, bookingID string) (*cache.CheckoutSession, error)
	SetCheckoutSession(ctx context.Context, bookingID string, session cache.CheckoutSession) error
	DeleteCheckoutSession(ctx context.Context, bookingID string) error
}

type BankDetailsProvider interface {
	Details(amount float64, currency, bookingReference string) bank.Details
}

type CheckoutResult struct {
	PaymentURL string `json:"paymentUrl"`
}

type BankTransferResult struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	BankDetails bank.Details `json:"bankDetails"`
}

type Service struct {
	bookings Repository
	checkout CheckoutGateway
	bank     BankDetailsProvider
	sessions SessionCache
	log      *zap.Logger
}

type Option func(*Service)

// WithSessionCache reuses an issued hosted checkout page while the booking still points at it.
func WithSessionCache(c SessionCache) Option {
	return func(s *Service) {
		s.sessions = c
	}
}

func NewService(bookings Repository, checkout CheckoutGateway, bankDetails BankDetailsProvider, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		bookings: bookings,
		checkout: checkout,
		bank:     bankDetails,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiateHostedCheckout opens a Paymob iframe session for the caller's booking and
// stamps the provider order id on it.
func (s *Service) InitiateHostedCheckout(ctx context.Context, user domain.User, bookingID string) (*CheckoutResult, error) {
	b, err := s.payable(ctx, user, bookingID)
	if err != nil {
		return nil, err
	}

	if cached := s.cachedSession(ctx, b); cached != nil {
		return &CheckoutResult{PaymentURL: cached.PaymentURL}, nil
	}

	amountCents := b.AmountCents()
	session, err := s.checkout.CreateIframeSession(ctx, paymob.SessionRequest{
		AmountCents:       amountCents,
		Currency:          b.Currency,
		MerchantReference: merchantReference(b.ID),
		Customer:          customerFor(b, user),
	})
	if err != nil {
		s.log.Error("paymob session failed", zap.String("booking_id", b.ID), zap.Error(err))
		return nil, domain.Upstream("failed to create payment session", err)
	}

	updated, err := s.stamp(ctx, user, b, domain.PaymentMethodPaymob, session.OrderID)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		err := s.sessions.SetCheckoutSession(ctx, updated.ID, cache.CheckoutSession{
			PaymentURL:  session.IframeURL,
			OrderID:     session.OrderID,
			AmountCents: amountCents,
			Currency:    updated.Currency,
		})
		if err != nil {
			s.log.Warn("failed to cache checkout session", zap.String("booking_id", updated.ID), zap.Error(err))
		}
	}

	s.log.Info("hosted checkout created", zap.String("booking_id", updated.ID), zap.String("order_id", session.OrderID), zap.Int64("amount_cents", amountCents))
	return &CheckoutResult{PaymentURL: session.IframeURL}, nil
}

// InitiateBankTransfer marks the booking as awaiting a transfer and returns the account
// details to show the customer. No provider is contacted.
func (s *Service) InitiateBankTransfer(ctx context.Context, user domain.User, bookingID string) (*BankTransferResult, error) {
	b, err := s.payable(ctx, user, bookingID)
	if err != nil {
		return nil, err
	}

	reference := bank.Reference(b.ID)
	updated, err := s.stamp(ctx, user, b, domain.PaymentMethodBank, reference)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		if err := s.sessions.DeleteCheckoutSession(ctx, updated.ID); err != nil {
			s.log.Warn("failed to drop checkout session", zap.String("booking_id", updated.ID), zap.Error(err))
		}
	}

	s.log.Info("bank transfer requested", zap.String("booking_id", updated.ID), zap.String("reference", reference))
	return &BankTransferResult{
		Success:     true,
		Message:     bankTransferMessage,
		BankDetails: s.bank.Details(updated.TotalAmount, updated.Currency, reference),
	}, nil
}

// payable loads a booking the caller owns and may still pay for.
func (s *Service) payable(ctx context.Context, user domain.User, bookingID string) (*domain.Booking, error) {
	if user.ID == "" {
		return nil, domain.Unauthorized("authentication required")
	}
	if bookingID == "" {
		return nil, domain.Validation("bookingId is required")
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, domain.Internal("failed to load booking", err)
	}
	if b.UserID != user.ID {
		return nil, domain.ErrBookingNotFound
	}
	return b, checkPayable(b)
}

func checkPayable(b *domain.Booking) error {
	switch b.PaymentStatus {
	case domain.PaymentStatusPaid:
		return domain.ErrAlreadyPaid
	case domain.PaymentStatusRefunded:
		return domain.Conflict("booking was refunded")
	}
	if b.Status == domain.BookingStatusCancelled {
		return domain.Conflict("booking is cancelled")
	}
	return nil
}

// stamp writes the payment session, reloading and rechecking the booking when a
// concurrent write bumped its version.
func (s *Service) stamp(ctx context.Context, user domain.User, b *domain.Booking, method domain.PaymentMethod, transactionID string) (*domain.Booking, error) {
	for attempt := 1; ; attempt++ {
		updated, err := s.bookings.SetPaymentSession(ctx, b.ID, b.Version, method, transactionID)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, domain.ErrBookingNotFound
		case !errors.Is(err, repository.ErrVersionConflict):
			return nil, domain.Internal("failed to update booking", err)
		case attempt == maxWriteAttempts:
			return nil, domain.Conflict("booking is being updated, try again")
		}

		s.log.Debug("booking version conflict, retrying", zap.String("booking_id", b.ID), zap.Int("attempt", attempt))
		if b, err = s.payable(ctx, user, b.ID); err != nil {
			return nil, err
		}
	}
}

func (s *Service) cachedSession(ctx context.Context, b *domain.Booking) *cache.CheckoutSession {
	if s.sessions == nil || b.PaymentMethod != domain.PaymentMethodPaymob || b.PaymentStatus != domain.PaymentStatusPending {
		return nil
	}
	session, err := s.sessions.GetCheckoutSession(ctx, b.ID)
	if err != nil {
		s.log.Warn("checkout cache unavailable", zap.String("booking_id", b.ID), zap.Error(err))
		return nil
	}
	if session == nil || session.OrderID != b.PaymentTransactionID || session.AmountCents != b.AmountCents() {
		return nil
	}
	return session
}

func customerFor(b *domain.Booking, user domain.User) paymob.Customer {
	c := paymob.Customer{
		Name:  b.GuestDetails.ContactName(),
		Email: b.GuestDetails.ContactEmail(),
		Phone: b.GuestDetails.ContactPhone(),
	}
	if c.Name == "" {
		c.Name = user.Name
	}
	if c.Email == "" {
		c.Email = user.Email
	}
	if c.Phone == "" {
		c.Phone = user.Phone
	}
	return c
}

const merchantSuffixLen = 8

// Paymob rejects a merchant_order_id it has seen before, so every attempt gets a suffix.
func merchantReference(bookingID string) string {
	return bookingID + "-" + uuid.NewString()[:merchantSuffixLen]
}

// BookingIDFromMerchantReference recovers the booking id from a merchant_order_id issued
// by InitiateHostedCheckout. It returns "" for anything else.
func BookingIDFromMerchantReference(ref string) string {
	cut := len(ref) - merchantSuffixLen - 1
	if cut <= 0 || ref[cut] != '-' {
		return ""
	}
	return ref[:cut]
}
