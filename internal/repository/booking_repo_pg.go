package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByTransactionID(ctx context.Context, method domain.PaymentMethod, transactionID string) (*domain.Booking, error)
	// SetPaymentSession stamps method and transaction id and resets paymentStatus to PENDING.
	SetPaymentSession(ctx context.Context, id string, version int64, method domain.PaymentMethod, transactionID string) (*domain.Booking, error)
	UpdatePaymentStatus(ctx context.Context, id string, version int64, payment domain.PaymentStatus, status domain.BookingStatus) (*domain.Booking, error)
	RecordSupplierOrder(ctx context.Context, id, orderID, supplierStatus string) error
	IncrementSupplierRetry(ctx context.Context, id, supplierStatus string) error
	ListRetryCandidates(ctx context.Context, bookingType domain.BookingType, maxRetries, limit int) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db DB
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, user_id, booking_type, status, payment_status,
	COALESCE(payment_method, ''), COALESCE(payment_transaction_id, ''), total_amount, currency,
	guest_details, flight_offer_data, COALESCE(amadeus_order_id, ''), COALESCE(amadeus_status, ''),
	amadeus_retry_count, version, created_at, updated_at`

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	guest, err := json.Marshal(booking.GuestDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal guest details: %w", err)
	}
	var offer []byte
	if len(booking.FlightOfferData) > 0 {
		offer = booking.FlightOfferData
	}

	err = r.db.QueryRow(ctx, `INSERT INTO bookings (id, user_id, booking_type, status, payment_status, total_amount, currency, guest_details, flight_offer_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING version, created_at, updated_at`,
		booking.ID, booking.UserID, booking.BookingType, booking.Status, booking.PaymentStatus,
		booking.TotalAmount, booking.Currency, guest, offer).
		Scan(&booking.Version, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
}

func (r *PGBookingRepository) GetByTransactionID(ctx context.Context, method domain.PaymentMethod, transactionID string) (*domain.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_method=$1 AND payment_transaction_id=$2`, method, transactionID))
}

// total_amount is never part of an UPDATE.
func (r *PGBookingRepository) SetPaymentSession(ctx context.Context, id string, version int64, method domain.PaymentMethod, transactionID string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings
		SET payment_method=$1, payment_transaction_id=$2, payment_status=$3, version=version+1, updated_at=now()
		WHERE id=$4 AND version=$5
		RETURNING `+bookingColumns,
		method, transactionID, domain.PaymentStatusPending, id, version)
	return r.conditional(ctx, id, row)
}

func (r *PGBookingRepository) UpdatePaymentStatus(ctx context.Context, id string, version int64, payment domain.PaymentStatus, status domain.BookingStatus) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings
		SET payment_status=$1, status=$2, version=version+1, updated_at=now()
		WHERE id=$3 AND version=$4
		RETURNING `+bookingColumns,
		payment, status, id, version)
	return r.conditional(ctx, id, row)
}

// conditional distinguishes a stale version from a missing row after a guarded UPDATE.
func (r *PGBookingRepository) conditional(ctx context.Context, id string, row pgx.Row) (*domain.Booking, error) {
	b, err := scanBooking(row)
	if !errors.Is(err, ErrNotFound) {
		return b, err
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check booking: %w", err)
	}
	if exists {
		return nil, ErrVersionConflict
	}
	return nil, ErrNotFound
}

func (r *PGBookingRepository) RecordSupplierOrder(ctx context.Context, id, orderID, supplierStatus string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings SET amadeus_order_id=$1, amadeus_status=$2, updated_at=now() WHERE id=$3`, orderID, nullString(supplierStatus), id)
	if err != nil {
		return fmt.Errorf("failed to record supplier order: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGBookingRepository) IncrementSupplierRetry(ctx context.Context, id, supplierStatus string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings SET amadeus_retry_count=amadeus_retry_count+1, amadeus_status=$1, updated_at=now() WHERE id=$2`, nullString(supplierStatus), id)
	if err != nil {
		return fmt.Errorf("failed to increment supplier retry: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGBookingRepository) ListRetryCandidates(ctx context.Context, bookingType domain.BookingType, maxRetries, limit int) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE payment_status=$1 AND booking_type=$2 AND amadeus_order_id IS NULL AND amadeus_retry_count < $3
		ORDER BY updated_at LIMIT $4`,
		domain.PaymentStatusPaid, bookingType, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retry candidates: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b     domain.Booking
		guest []byte
		offer []byte
	)
	err := row.Scan(&b.ID, &b.UserID, &b.BookingType, &b.Status, &b.PaymentStatus,
		&b.PaymentMethod, &b.PaymentTransactionID, &b.TotalAmount, &b.Currency,
		&guest, &offer, &b.SupplierOrderID, &b.SupplierStatus,
		&b.SupplierRetryCount, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	if len(guest) > 0 {
		if err := json.Unmarshal(guest, &b.GuestDetails); err != nil {
			return nil, fmt.Errorf("failed to decode guest details: %w", err)
		}
	}
	if len(offer) > 0 {
		b.FlightOfferData = offer
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
