package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/Domenick1991/travelbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type bookingResponse struct {
	ID                   string              `json:"id"`
	BookingType          string              `json:"bookingType"`
	Status               string              `json:"status"`
	PaymentStatus        string              `json:"paymentStatus"`
	PaymentMethod        string              `json:"paymentMethod,omitempty"`
	PaymentTransactionID string              `json:"paymentTransactionId,omitempty"`
	TotalAmount          float64             `json:"totalAmount"`
	Currency             string              `json:"currency"`
	GuestDetails         domain.GuestDetails `json:"guestDetails"`
	FlightOfferData      json.RawMessage     `json:"flightOfferData,omitempty"`
	CreatedAt            string              `json:"createdAt"`
	UpdatedAt            string              `json:"updatedAt"`
}

func newBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                   b.ID,
		BookingType:          string(b.BookingType),
		Status:               string(b.Status),
		PaymentStatus:        string(b.PaymentStatus),
		PaymentMethod:        string(b.PaymentMethod),
		PaymentTransactionID: b.PaymentTransactionID,
		TotalAmount:          b.TotalAmount,
		Currency:             b.Currency,
		GuestDetails:         b.GuestDetails,
		FlightOfferData:      b.FlightOfferData,
		CreatedAt:            b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            b.UpdatedAt.Format(time.RFC3339),
	}
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
}

func (h *BookingHandler) create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	created, err := h.service.CreateBooking(c.Request.Context(), user, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(created))
}

func (h *BookingHandler) get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(b))
}
