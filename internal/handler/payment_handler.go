package handler

import (
	"net/http"
	"strings"

	"github.com/Go-ku/landlord-app-sub001/internal/mobilemoney"
	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// PaymentRequest records a payment against a lease
type PaymentRequest struct {
	LeaseID     uint    `json:"lease_id" validate:"required"`
	InvoiceID   *uint   `json:"invoice_id"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
	Method      string  `json:"method" validate:"required,oneof=cash bank_transfer mobile_money card cheque"`
	PaidAt      string  `json:"paid_at"`
	Reference   string  `json:"reference" validate:"max=64"`
	PhoneNumber string  `json:"phone_number"`
	Notes       string  `json:"notes"`
	Verify      bool    `json:"verify"`
}

// MobileMoneyRequest asks the provider to collect a payment
type MobileMoneyRequest struct {
	LeaseID     uint    `json:"lease_id" validate:"required"`
	InvoiceID   *uint   `json:"invoice_id"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	PhoneNumber string  `json:"phone_number" validate:"required"`
	Reference   string  `json:"reference" validate:"max=64"`
}

// RejectRequest declines a pending payment
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ListPayments returns the payments visible to the caller
func (h *Handler) ListPayments(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "list payments")
	}

	filter := service.PaymentFilter{
		Status: model.PaymentStatus(c.QueryParam("status")),
		Method: model.PaymentMethod(c.QueryParam("method")),
	}
	if filter.LeaseID, err = queryID(c, "lease_id"); err != nil {
		return respond(c, log, err, "list payments")
	}
	if filter.InvoiceID, err = queryID(c, "invoice_id"); err != nil {
		return respond(c, log, err, "list payments")
	}
	if filter.From, err = queryDate(c, "from"); err != nil {
		return respond(c, log, err, "list payments")
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		return respond(c, log, err, "list payments")
	}

	payments, err := h.svc.Payments.List(c.Request().Context(), a, filter)
	if err != nil {
		return respond(c, log, err, "list payments")
	}

	log.Info("Payments listed", zap.Int("count", len(payments)))
	return c.JSON(http.StatusOK, payments)
}

// GetPayment returns one payment
func (h *Handler) GetPayment(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "get payment")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "get payment")
	}

	payment, err := h.svc.Payments.Get(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "get payment")
	}
	return c.JSON(http.StatusOK, payment)
}

// RecordPayment records a payment. A replayed reference answers 200 with
// the payment already on file.
func (h *Handler) RecordPayment(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "record payment")
	}

	var req PaymentRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "record payment")
	}
	paidAt, err := parseDate("paid_at", req.PaidAt)
	if err != nil {
		return respond(c, log, err, "record payment")
	}

	payment, created, err := h.svc.Payments.Record(c.Request().Context(), a, service.PaymentInput{
		LeaseID:     req.LeaseID,
		InvoiceID:   req.InvoiceID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      model.PaymentMethod(req.Method),
		PaidAt:      paidAt,
		Reference:   req.Reference,
		PhoneNumber: req.PhoneNumber,
		Notes:       req.Notes,
		Verify:      req.Verify,
	})
	if err != nil {
		return respond(c, log, err, "record payment")
	}

	if !created {
		log.Info("Payment replayed", zap.String("reference", payment.Reference))
		return c.JSON(http.StatusOK, payment)
	}
	log.Info("Payment recorded",
		zap.Uint("payment_id", payment.ID),
		zap.String("reference", payment.Reference),
		zap.String("status", string(payment.Status)))
	return c.JSON(http.StatusCreated, payment)
}

// VerifyPayment confirms a pending payment
func (h *Handler) VerifyPayment(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "verify payment")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "verify payment")
	}

	payment, err := h.svc.Payments.Verify(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "verify payment")
	}
	return c.JSON(http.StatusOK, payment)
}

// RejectPayment declines a pending payment
func (h *Handler) RejectPayment(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "reject payment")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "reject payment")
	}

	var req RejectRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "reject payment")
	}

	payment, err := h.svc.Payments.Reject(c.Request().Context(), a, id, req.Reason)
	if err != nil {
		return respond(c, log, err, "reject payment")
	}

	log.Info("Payment rejected", zap.Uint("payment_id", payment.ID))
	return c.JSON(http.StatusOK, payment)
}

// InitiateMobileMoney starts a provider-collected payment. The payment
// stays pending until the provider calls back, so a new request answers 202.
func (h *Handler) InitiateMobileMoney(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "start mobile money payment")
	}

	var req MobileMoneyRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "start mobile money payment")
	}

	payment, created, err := h.svc.Payments.InitiateMobileMoney(c.Request().Context(), a, service.MobileMoneyInput{
		LeaseID:     req.LeaseID,
		InvoiceID:   req.InvoiceID,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
		Reference:   req.Reference,
	})
	if err != nil {
		return respond(c, log, err, "start mobile money payment")
	}

	if !created {
		return c.JSON(http.StatusOK, payment)
	}
	return c.JSON(http.StatusAccepted, payment)
}

// MobileMoneyCallback applies a provider status callback. It is
// authenticated by a shared secret header rather than a user token.
func (h *Handler) MobileMoneyCallback(c echo.Context) error {
	log := logger.FromContext(c)

	if !mobilemoney.ValidSecret(c.Request().Header.Get(mobilemoney.SecretHeader), h.callbackSecret) {
		log.Warn("Mobile money callback with invalid secret", zap.String("ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid callback secret"})
	}

	var cb mobilemoney.Callback
	if err := c.Bind(&cb); err != nil {
		return respond(c, log, badRequest("invalid request data"), "apply callback")
	}
	cb.Status = strings.ToUpper(strings.TrimSpace(cb.Status))
	if err := c.Validate(&cb); err != nil {
		return respond(c, log, badRequest(err.Error()), "apply callback")
	}

	payment, err := h.svc.Payments.HandleCallback(c.Request().Context(), cb)
	if err != nil {
		return respond(c, log, err, "apply callback")
	}

	log.Info("Mobile money callback applied",
		zap.String("reference", payment.Reference),
		zap.String("provider_status", cb.Status),
		zap.String("status", string(payment.Status)))
	return c.JSON(http.StatusOK, payment)
}
