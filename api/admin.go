package api

import (
	"fmt"
	"net/http"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves back-office operations. Routes must sit behind auth.RequireAdmin.
type AdminHandler struct {
	service booking.BookingUseCase
}

type reconcileRequest struct {
	PaymentStatus domain.PaymentStatus `json:"paymentStatus" binding:"required,oneof=PAID FAILED"`
}

func NewAdminHandler(service booking.BookingUseCase) *AdminHandler {
	return &AdminHandler{service: service}
}

func (h *AdminHandler) Register(router *gin.RouterGroup) {
	router.POST("/bookings/:id/refund", h.refund)
	router.POST("/bookings/:id/reconcile", h.reconcile)
}

func (h *AdminHandler) refund(c *gin.Context) {
	refunded, err := h.service.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(refunded))
}

// reconcile records a manually confirmed bank transfer. Repeating the same
// decision for a booking is a duplicate event.
func (h *AdminHandler) reconcile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	current, err := h.service.GetBooking(ctx, user, id)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.service.ProcessPaymentEvent(ctx, booking.PaymentEvent{
		Source:    domain.WebhookSourceBank,
		EventID:   fmt.Sprintf("manual:%s:%s", current.ID, req.PaymentStatus),
		BookingID: current.ID,
		Outcome:   req.PaymentStatus,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	updated := res.Booking
	if updated == nil {
		if updated, err = h.service.GetBooking(ctx, user, id); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome, "booking": newBookingResponse(updated)})
}
