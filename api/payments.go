package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentUseCase interface {
	InitiateHostedCheckout(ctx context.Context, user domain.User, bookingID string) (*payment.CheckoutResult, error)
	InitiateBankTransfer(ctx context.Context, user domain.User, bookingID string) (*payment.BankTransferResult, error)
}

type PaymentHandler struct {
	service PaymentUseCase
}

type paymentRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
}

func NewPaymentHandler(service PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/paymob", h.paymob)
	router.POST("/bank", h.bank)
}

func (h *PaymentHandler) paymob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.service.InitiateHostedCheckout(c.Request.Context(), user, req.BookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) bank(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.service.InitiateBankTransfer(c.Request.Context(), user, req.BookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
