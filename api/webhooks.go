package api

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/gateway/bank"
	"github.com/Domenick1991/travelbooking/internal/service/booking"
	"github.com/Domenick1991/travelbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const bankSecretHeader = "X-Webhook-Secret"

// paymobHMACFields is the order Paymob concatenates transaction fields in before signing.
var paymobHMACFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

type WebhookHandler struct {
	service      booking.BookingUseCase
	paymobSecret string
	bankSecret   string
	log          *zap.Logger
}

type bankWebhookRequest struct {
	EventID        string               `json:"eventId"`
	IdempotencyKey string               `json:"idempotencyKey"`
	Reference      string               `json:"reference" binding:"required"`
	Status         domain.PaymentStatus `json:"status" binding:"required,oneof=PAID FAILED"`
}

func NewWebhookHandler(service booking.BookingUseCase, paymobSecret, bankSecret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, paymobSecret: paymobSecret, bankSecret: bankSecret, log: log}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/paymob", h.paymob)
	router.POST("/bank", h.bank)
}

func (h *WebhookHandler) paymob(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": domain.KindValidation})
		return
	}
	obj := gjson.GetBytes(body, "obj")
	if !h.validPaymobSignature(obj, c.Query("hmac")) {
		h.log.Warn("paymob webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "code": domain.KindUnauthorized})
		return
	}

	if t := gjson.GetBytes(body, "type").String(); t != "" && t != "TRANSACTION" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if obj.Get("pending").Bool() {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	orderID := obj.Get("order.id").String()
	merchantRef := obj.Get("order.merchant_order_id").String()
	eventID := obj.Get("id").String()
	if eventID == "" {
		eventID = "order:" + orderID + ":" + obj.Get("success").String()
	}

	// Refunds are issued from the admin API. A provider-side refund or void is left for an admin.
	if obj.Get("is_refunded").Bool() || obj.Get("is_voided").Bool() {
		h.log.Warn("paymob refund or void notification needs admin review",
			zap.String("event_id", eventID),
			zap.String("order_id", orderID),
			zap.String("merchant_order_id", merchantRef),
			zap.Bool("is_refunded", obj.Get("is_refunded").Bool()),
			zap.Bool("is_voided", obj.Get("is_voided").Bool()))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	outcome := domain.PaymentStatusFailed
	if obj.Get("success").Bool() {
		outcome = domain.PaymentStatusPaid
	}

	ref := booking.PaymentReference{
		Method:        domain.PaymentMethodPaymob,
		TransactionID: orderID,
		BookingID:     payment.BookingIDFromMerchantReference(merchantRef),
		AmountCents:   obj.Get("amount_cents").Int(),
		Currency:      obj.Get("currency").String(),
	}
	h.handle(c, domain.WebhookSourcePaymob, ref, eventID, outcome)
}

func (h *WebhookHandler) bank(c *gin.Context) {
	if h.bankSecret == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader(bankSecretHeader)), []byte(h.bankSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "code": domain.KindUnauthorized})
		return
	}
	var req bankWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = req.IdempotencyKey
	}
	if eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventId or idempotencyKey is required", "code": domain.KindValidation})
		return
	}

	ref := booking.PaymentReference{
		Method:        domain.PaymentMethodBank,
		TransactionID: req.Reference,
		BookingID:     bank.BookingID(req.Reference),
	}
	h.handle(c, domain.WebhookSourceBank, ref, eventID, req.Status)
}

// handle runs an authenticated notification through the guard. Only failures a
// redelivery could fix answer non-2xx.
func (h *WebhookHandler) handle(c *gin.Context, source domain.WebhookSource, ref booking.PaymentReference, eventID string, outcome domain.PaymentStatus) {
	ctx := c.Request.Context()
	log := h.log.With(zap.String("source", string(source)), zap.String("event_id", eventID), zap.String("reference", ref.TransactionID))

	b, err := h.service.FindByPaymentReference(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			log.Warn("webhook for unknown payment reference")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		log.Error("failed to resolve booking for webhook", zap.Error(err))
		writeError(c, err)
		return
	}

	res, err := h.service.ProcessPaymentEvent(ctx, booking.PaymentEvent{
		Source:    source,
		EventID:   eventID,
		BookingID: b.ID,
		Outcome:   outcome,
	})
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindInternal, domain.KindConflict:
			if !errors.Is(err, booking.ErrInvalidTransition) {
				log.Error("failed to process webhook", zap.String("booking_id", b.ID), zap.Error(err))
				writeError(c, err)
				return
			}
		}
		log.Warn("webhook ignored", zap.String("booking_id", b.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	log.Info("webhook handled", zap.String("booking_id", b.ID), zap.String("outcome", string(res.Outcome)))
	c.JSON(http.StatusOK, gin.H{"status": res.Outcome})
}

func (h *WebhookHandler) validPaymobSignature(obj gjson.Result, signature string) bool {
	if h.paymobSecret == "" || signature == "" || !obj.Exists() {
		return false
	}
	var sb strings.Builder
	for _, field := range paymobHMACFields {
		sb.WriteString(obj.Get(field).String())
	}
	mac := hmac.New(sha512.New, []byte(h.paymobSecret))
	mac.Write([]byte(sb.String()))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
