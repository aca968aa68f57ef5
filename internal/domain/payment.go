package domain

// paymentTransitions lists every allowed paymentStatus move. REFUNDED has no exits and is
// reached only by an admin refund.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:  {PaymentStatusPending},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentPath returns the statuses a payment passes through on its way to to, one write
// each. A FAILED payment is reopened to PENDING before it can settle again.
func PaymentPath(from, to PaymentStatus) ([]PaymentStatus, bool) {
	if from == to {
		return nil, true
	}
	if CanTransitionPayment(from, to) {
		return []PaymentStatus{to}, true
	}
	if to != PaymentStatusPending && CanTransitionPayment(from, PaymentStatusPending) && CanTransitionPayment(PaymentStatusPending, to) {
		return []PaymentStatus{PaymentStatusPending, to}, true
	}
	return nil, false
}

// BookingStatusFor returns the booking status implied by a new payment status.
func BookingStatusFor(current BookingStatus, payment PaymentStatus) BookingStatus {
	switch payment {
	case PaymentStatusPaid:
		if current == BookingStatusPending {
			return BookingStatusConfirmed
		}
	case PaymentStatusRefunded:
		return BookingStatusCancelled
	}
	return current
}

type WebhookSource string

const (
	WebhookSourcePaymob WebhookSource = "PAYMOB"
	WebhookSourceBank   WebhookSource = "BANK"
)

func (s WebhookSource) Valid() bool {
	return s == WebhookSourcePaymob || s == WebhookSourceBank
}

type WebhookIdempotencyRecord struct {
	Source    WebhookSource
	EventID   string
	BookingID string
}

type IdempotencyOutcome string

const (
	OutcomeProcessed IdempotencyOutcome = "processed"
	OutcomeDuplicate IdempotencyOutcome = "duplicate"
)
