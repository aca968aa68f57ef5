package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/travelbooking/config"
	"github.com/Domenick1991/travelbooking/internal/kafka"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Transport delivers a composed message. *mail.Client satisfies it.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Sender struct {
	transport Transport
	from      string
	log       *zap.Logger
}

// NewSender returns a sender that only logs when no SMTP host is configured.
func NewSender(cfg config.SMTPConfig, log *zap.Logger) (*Sender, error) {
	s := &Sender{from: cfg.From, log: log}
	if cfg.Host == "" {
		return s, nil
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	s.transport = client
	return s, nil
}

func NewSenderWithTransport(transport Transport, from string, log *zap.Logger) *Sender {
	return &Sender{transport: transport, from: from, log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Email == "" {
		s.log.Debug("booking event without recipient", zap.String("booking_id", event.BookingID), zap.String("type", event.Type))
		return nil
	}
	subject, body, ok := compose(event)
	if !ok {
		return nil
	}
	if s.transport == nil {
		s.log.Info("smtp disabled, skipping email", zap.String("to", event.Email), zap.String("subject", subject))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(event.Email); err != nil {
		// A bad address will never succeed; drop it.
		s.log.Warn("invalid recipient", zap.String("to", event.Email), zap.Error(err))
		return nil
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.transport.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func compose(event kafka.BookingEvent) (string, string, bool) {
	kind := strings.ToLower(strings.ReplaceAll(event.BookingType, "_", " "))
	amount := fmt.Sprintf("%.2f %s", event.Amount, event.Currency)
	switch event.Type {
	case "booking_paid":
		return fmt.Sprintf("Booking %s confirmed", event.BookingID),
			fmt.Sprintf("We received your payment of %s. Your %s booking %s is confirmed.", amount, kind, event.BookingID), true
	case "booking_payment_failed":
		return fmt.Sprintf("Payment for booking %s failed", event.BookingID),
			fmt.Sprintf("Your payment of %s for booking %s did not go through. You can try again from your bookings page.", amount, event.BookingID), true
	case "booking_refunded":
		return fmt.Sprintf("Booking %s refunded", event.BookingID),
			fmt.Sprintf("A refund of %s for booking %s has been issued.", amount, event.BookingID), true
	}
	return "", "", false
}
