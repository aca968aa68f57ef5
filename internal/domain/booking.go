package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

type BookingType string

const (
	BookingTypeTour           BookingType = "TOUR"
	BookingTypeFlight         BookingType = "FLIGHT"
	BookingTypeHotel          BookingType = "HOTEL"
	BookingTypeVisa           BookingType = "VISA"
	BookingTypeCharterPackage BookingType = "CHARTER_PACKAGE"
)

func (t BookingType) Valid() bool {
	switch t {
	case BookingTypeTour, BookingTypeFlight, BookingTypeHotel, BookingTypeVisa, BookingTypeCharterPackage:
		return true
	}
	return false
}

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodBank   PaymentMethod = "BANK"
	PaymentMethodPaymob PaymentMethod = "PAYMOB"
)

type Booking struct {
	ID                   string
	UserID               string
	BookingType          BookingType
	Status               BookingStatus
	PaymentStatus        PaymentStatus
	PaymentMethod        PaymentMethod
	PaymentTransactionID string
	TotalAmount          float64
	Currency             string
	GuestDetails         GuestDetails
	FlightOfferData      json.RawMessage
	// Legacy supplier fields, persisted as amadeus_order_id / amadeus_status / amadeus_retry_count.
	SupplierOrderID    string
	SupplierStatus     string
	SupplierRetryCount int
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AmountCents is the total in minor units as sent to payment providers.
func (b Booking) AmountCents() int64 {
	return int64(math.Round(b.TotalAmount * 100))
}

// GuestDetails is the contact block entered at checkout. Keys outside the
// typed fields are kept in Extra and written back unchanged.
type GuestDetails struct {
	FirstName  string      `json:"firstName,omitempty"`
	LastName   string      `json:"lastName,omitempty"`
	FullName   string      `json:"fullName,omitempty"`
	Email      string      `json:"email,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Passengers []Passenger `json:"passengers,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type Passenger struct {
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
	PassportNumber string `json:"passportNumber,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var (
	guestKeys     = []string{"firstName", "lastName", "fullName", "email", "phone", "passengers"}
	passengerKeys = []string{"firstName", "lastName", "email", "phone", "dateOfBirth", "passportNumber"}
)

func (g GuestDetails) MarshalJSON() ([]byte, error) {
	type plain GuestDetails
	data, err := json.Marshal(plain(g))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, g.Extra)
}

func (g *GuestDetails) UnmarshalJSON(data []byte) error {
	type plain GuestDetails
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, guestKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*g = GuestDetails(p)
	return nil
}

func (p Passenger) MarshalJSON() ([]byte, error) {
	type plain Passenger
	data, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return mergeExtra(data, p.Extra)
}

func (p *Passenger) UnmarshalJSON(data []byte) error {
	type plain Passenger
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := splitExtra(data, passengerKeys)
	if err != nil {
		return err
	}
	v.Extra = extra
	*p = Passenger(v)
	return nil
}

func splitExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, key := range known {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// mergeExtra adds extra keys to an encoded object. Typed fields win on collision.
func mergeExtra(data []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := all[key]; !ok {
			all[key] = value
		}
	}
	return json.Marshal(all)
}

// ContactName prefers the explicit contact, then the lead passenger.
func (g GuestDetails) ContactName() string {
	if g.FullName != "" {
		return g.FullName
	}
	if name := strings.TrimSpace(g.FirstName + " " + g.LastName); name != "" {
		return name
	}
	if len(g.Passengers) > 0 {
		return strings.TrimSpace(g.Passengers[0].FirstName + " " + g.Passengers[0].LastName)
	}
	return ""
}

func (g GuestDetails) ContactEmail() string {
	if g.Email != "" {
		return g.Email
	}
	if len(g.Passengers) > 0 {
		return g.Passengers[0].Email
	}
	return ""
}

func (g GuestDetails) ContactPhone() string {
	if g.Phone != "" {
		return g.Phone
	}
	if len(g.Passengers) > 0 {
		return g.Passengers[0].Phone
	}
	return ""
}

// User is the authenticated caller as supplied by the identity provider.
type User struct {
	ID    string
	Email string
	Name  string
	Phone string
	Role  string
}

func (u User) IsAdmin() bool {
	return u.Role == "ADMIN"
}
