package bank

import (
	"strings"

	"github.com/Domenick1991/travelbooking/config"
)

const referenceSuffix = "-bank"

type Details struct {
	AccountName      string  `json:"accountName"`
	IBAN             string  `json:"iban"`
	BankName         string  `json:"bankName"`
	ReferenceFormat  string  `json:"referenceFormat"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	BookingReference string  `json:"bookingReference"`
}

// Reference is the transfer reference customers quote for a booking.
func Reference(bookingID string) string {
	return bookingID + referenceSuffix
}

// BookingID is the inverse of Reference. It returns "" when ref is not a transfer reference.
func BookingID(ref string) string {
	id, ok := strings.CutSuffix(ref, referenceSuffix)
	if !ok {
		return ""
	}
	return id
}

// Provider holds the receiving account. It performs no I/O.
type Provider struct {
	accountName     string
	iban            string
	bankName        string
	referenceFormat string
}

func NewProvider(cfg config.BankConfig) *Provider {
	return &Provider{
		accountName:     cfg.AccountName,
		iban:            cfg.IBAN,
		bankName:        cfg.BankName,
		referenceFormat: cfg.ReferenceFormat,
	}
}

func (p *Provider) Details(amount float64, currency, bookingReference string) Details {
	return Details{
		AccountName:      p.accountName,
		IBAN:             p.iban,
		BankName:         p.bankName,
		ReferenceFormat:  p.referenceFormat,
		Amount:           amount,
		Currency:         currency,
		BookingReference: bookingReference,
	}
}
