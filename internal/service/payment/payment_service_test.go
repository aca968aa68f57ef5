package payment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Domenick1991/travelbooking/config"
	"github.com/Domenick1991/travelbooking/internal/cache"
	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/gateway/bank"
	"github.com/Domenick1991/travelbooking/internal/gateway/paymob"
	"github.com/Domenick1991/travelbooking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockRepository) SetPaymentSession(ctx context.Context, id string, version int64, method domain.PaymentMethod, transactionID string) (*domain.Booking, error) {
	args := m.Called(ctx, id, version, method, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateIframeSession(ctx context.Context, req paymob.SessionRequest) (*paymob.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymob.Session), args.Error(1)
}

type MockSessionCache struct {
	mock.Mock
}

func (m *MockSessionCache) GetCheckoutSession(ctx context.Context, bookingID string) (*cache.CheckoutSession, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cache.CheckoutSession), args.Error(1)
}

func (m *MockSessionCache) SetCheckoutSession(ctx context.Context, bookingID string, session cache.CheckoutSession) error {
	args := m.Called(ctx, bookingID, session)
	return args.Error(0)
}

func (m *MockSessionCache) DeleteCheckoutSession(ctx context.Context, bookingID string) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

var customer = domain.User{ID: "usr_1", Email: "user@example.com", Name: "Account Holder", Phone: "+201000000000"}

func bankProvider() *bank.Provider {
	return bank.NewProvider(config.BankConfig{
		AccountName:     "Travel Co",
		IBAN:            "EG380019000500000000263180002",
		BankName:        "National Bank",
		ReferenceFormat: "<booking id>-bank",
	})
}

func pendingBooking() *domain.Booking {
	return &domain.Booking{
		ID:            "bk_1",
		UserID:        "usr_1",
		BookingType:   domain.BookingTypeTour,
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TotalAmount:   1000.00,
		Currency:      "EGP",
		Version:       1,
	}
}

func TestInitiateBankTransfer_Scenario(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	stamped := pendingBooking()
	stamped.PaymentMethod = domain.PaymentMethodBank
	stamped.PaymentTransactionID = "bk_1-bank"
	stamped.Version = 2

	repo.On("GetByID", mock.Anything, "bk_1").Return(pendingBooking(), nil)
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(1), domain.PaymentMethodBank, "bk_1-bank").Return(stamped, nil).Once()

	res, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, "bk_1-bank", res.BankDetails.BookingReference)
	assert.Equal(t, 1000.00, res.BankDetails.Amount)
	assert.Equal(t, "EGP", res.BankDetails.Currency)
	assert.Equal(t, "EG380019000500000000263180002", res.BankDetails.IBAN)
	assert.Equal(t, "<booking id>-bank", res.BankDetails.ReferenceFormat)
	repo.AssertExpectations(t)
}

func TestInitiateBankTransfer_Deterministic(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	stamped := pendingBooking()
	repo.On("GetByID", mock.Anything, "bk_1").Return(pendingBooking(), nil)
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(1), domain.PaymentMethodBank, "bk_1-bank").Return(stamped, nil)

	first, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	require.NoError(t, err)
	second, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	require.NoError(t, err)

	assert.Equal(t, first.BankDetails, second.BankDetails)
	repo.AssertNumberOfCalls(t, "SetPaymentSession", 2)
}

func TestInitiate_AlreadyPaidRejectsWithoutWrite(t *testing.T) {
	repo := new(MockRepository)
	gateway := new(MockGateway)
	svc := NewService(repo, gateway, bankProvider(), zap.NewNop())

	paid := pendingBooking()
	paid.PaymentStatus = domain.PaymentStatusPaid
	paid.Status = domain.BookingStatusConfirmed
	repo.On("GetByID", mock.Anything, "bk_1").Return(paid, nil)

	_, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

	_, err = svc.InitiateHostedCheckout(context.Background(), customer, "bk_1")
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	repo.AssertNotCalled(t, "SetPaymentSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "CreateIframeSession", mock.Anything, mock.Anything)
}

func TestInitiate_Refunded(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	refunded := pendingBooking()
	refunded.PaymentStatus = domain.PaymentStatusRefunded
	refunded.Status = domain.BookingStatusCancelled
	repo.On("GetByID", mock.Anything, "bk_1").Return(refunded, nil)

	_, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestInitiate_AccessErrors(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	repo.On("GetByID", mock.Anything, "bk_1").Return(pendingBooking(), nil)
	repo.On("GetByID", mock.Anything, "bk_missing").Return(nil, repository.ErrNotFound)
	repo.On("GetByID", mock.Anything, "bk_broken").Return(nil, errors.New("connection reset"))

	_, err := svc.InitiateBankTransfer(context.Background(), domain.User{}, "bk_1")
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = svc.InitiateBankTransfer(context.Background(), customer, "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.InitiateBankTransfer(context.Background(), customer, "bk_missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	stranger := domain.User{ID: "usr_2"}
	_, err = svc.InitiateHostedCheckout(context.Background(), stranger, "bk_1")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	_, err = svc.InitiateBankTransfer(context.Background(), customer, "bk_broken")
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	repo.AssertNotCalled(t, "SetPaymentSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiateHostedCheckout_Success(t *testing.T) {
	repo := new(MockRepository)
	gateway := new(MockGateway)
	sessions := new(MockSessionCache)
	svc := NewService(repo, gateway, bankProvider(), zap.NewNop(), WithSessionCache(sessions))

	b := pendingBooking()
	b.TotalAmount = 1234.56
	b.GuestDetails = domain.GuestDetails{Passengers: []domain.Passenger{{FirstName: "Lead", LastName: "Traveller", Email: "lead@example.com"}}}
	repo.On("GetByID", mock.Anything, "bk_1").Return(b, nil)

	gateway.On("CreateIframeSession", mock.Anything, mock.MatchedBy(func(req paymob.SessionRequest) bool {
		return req.AmountCents == 123456 &&
			req.Currency == "EGP" &&
			strings.HasPrefix(req.MerchantReference, "bk_1-") &&
			req.Customer.Name == "Lead Traveller" &&
			req.Customer.Email == "lead@example.com" &&
			req.Customer.Phone == customer.Phone
	})).Return(&paymob.Session{IframeURL: "https://accept.paymob.com/api/acceptance/iframes/9?payment_token=tok", OrderID: "555"}, nil)

	stamped := *b
	stamped.PaymentMethod = domain.PaymentMethodPaymob
	stamped.PaymentTransactionID = "555"
	stamped.Version = 2
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(1), domain.PaymentMethodPaymob, "555").Return(&stamped, nil)
	sessions.On("SetCheckoutSession", mock.Anything, "bk_1", cache.CheckoutSession{
		PaymentURL:  "https://accept.paymob.com/api/acceptance/iframes/9?payment_token=tok",
		OrderID:     "555",
		AmountCents: 123456,
		Currency:    "EGP",
	}).Return(nil)

	res, err := svc.InitiateHostedCheckout(context.Background(), customer, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, "https://accept.paymob.com/api/acceptance/iframes/9?payment_token=tok", res.PaymentURL)

	repo.AssertExpectations(t)
	gateway.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestInitiateHostedCheckout_ReusesCachedSession(t *testing.T) {
	repo := new(MockRepository)
	gateway := new(MockGateway)
	sessions := new(MockSessionCache)
	svc := NewService(repo, gateway, bankProvider(), zap.NewNop(), WithSessionCache(sessions))

	b := pendingBooking()
	b.PaymentMethod = domain.PaymentMethodPaymob
	b.PaymentTransactionID = "555"
	repo.On("GetByID", mock.Anything, "bk_1").Return(b, nil)
	sessions.On("GetCheckoutSession", mock.Anything, "bk_1").Return(&cache.CheckoutSession{
		PaymentURL: "https://pay/cached", OrderID: "555", AmountCents: 100000, Currency: "EGP",
	}, nil)

	res, err := svc.InitiateHostedCheckout(context.Background(), customer, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay/cached", res.PaymentURL)

	gateway.AssertNotCalled(t, "CreateIframeSession", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SetPaymentSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiateHostedCheckout_UpstreamError(t *testing.T) {
	repo := new(MockRepository)
	gateway := new(MockGateway)
	svc := NewService(repo, gateway, bankProvider(), zap.NewNop())

	repo.On("GetByID", mock.Anything, "bk_1").Return(pendingBooking(), nil)
	gateway.On("CreateIframeSession", mock.Anything, mock.Anything).
		Return(nil, &paymob.Error{Operation: "order", StatusCode: 400, Message: "duplicate merchant order id"})

	_, err := svc.InitiateHostedCheckout(context.Background(), customer, "bk_1")
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate merchant order id")

	repo.AssertNotCalled(t, "SetPaymentSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiateBankTransfer_RetriesVersionConflict(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	stale := pendingBooking()
	fresh := pendingBooking()
	fresh.Version = 2
	stamped := pendingBooking()
	stamped.Version = 3

	repo.On("GetByID", mock.Anything, "bk_1").Return(stale, nil).Once()
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(1), domain.PaymentMethodBank, "bk_1-bank").Return(nil, repository.ErrVersionConflict).Once()
	repo.On("GetByID", mock.Anything, "bk_1").Return(fresh, nil).Once()
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(2), domain.PaymentMethodBank, "bk_1-bank").Return(stamped, nil).Once()

	res, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, "bk_1-bank", res.BankDetails.BookingReference)
	repo.AssertExpectations(t)
}

func TestInitiateBankTransfer_ConflictBecomesPaid(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	paid := pendingBooking()
	paid.PaymentStatus = domain.PaymentStatusPaid
	paid.Version = 2

	repo.On("GetByID", mock.Anything, "bk_1").Return(pendingBooking(), nil).Once()
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(1), domain.PaymentMethodBank, "bk_1-bank").Return(nil, repository.ErrVersionConflict).Once()
	repo.On("GetByID", mock.Anything, "bk_1").Return(paid, nil).Once()

	_, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	repo.AssertNumberOfCalls(t, "SetPaymentSession", 1)
}

func TestInitiateBankTransfer_ConflictExhausted(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockGateway), bankProvider(), zap.NewNop())

	repo.On("GetByID", mock.Anything, "bk_1").Return(pendingBooking(), nil)
	repo.On("SetPaymentSession", mock.Anything, "bk_1", int64(1), domain.PaymentMethodBank, "bk_1-bank").Return(nil, repository.ErrVersionConflict)

	_, err := svc.InitiateBankTransfer(context.Background(), customer, "bk_1")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	repo.AssertNumberOfCalls(t, "SetPaymentSession", maxWriteAttempts)
}

func TestCustomerFor_FallsBackToUser(t *testing.T) {
	b := pendingBooking()
	b.GuestDetails = domain.GuestDetails{Email: "guest@example.com"}

	c := customerFor(b, customer)
	assert.Equal(t, "Account Holder", c.Name)
	assert.Equal(t, "guest@example.com", c.Email)
	assert.Equal(t, customer.Phone, c.Phone)
}

func TestBookingIDFromMerchantReference(t *testing.T) {
	id := "3f0c9a2e-8d1b-4e5f-9a7c-1b2d3e4f5a6b"
	assert.Equal(t, id, BookingIDFromMerchantReference(merchantReference(id)))
	assert.Equal(t, "bk_1", BookingIDFromMerchantReference("bk_1-1a2b3c4d"))

	for _, ref := range []string{"", "555", "-1a2b3c4d", "bk_1-1a2b3c4", "bk_1_1a2b3c4d"} {
		assert.Empty(t, BookingIDFromMerchantReference(ref), ref)
	}
}
