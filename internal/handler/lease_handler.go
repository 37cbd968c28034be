package handler

import (
	"net/http"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LeaseRequest creates a draft lease
type LeaseRequest struct {
	PropertyID      uint    `json:"property_id" validate:"required"`
	TenantID        uint    `json:"tenant_id" validate:"required"`
	Unit            string  `json:"unit"`
	StartDate       string  `json:"start_date" validate:"required"`
	EndDate         string  `json:"end_date" validate:"required"`
	MonthlyRent     float64 `json:"monthly_rent" validate:"gt=0"`
	SecurityDeposit float64 `json:"security_deposit" validate:"gte=0"`
	Currency        string  `json:"currency" validate:"omitempty,len=3"`
	PaymentDueDay   int     `json:"payment_due_day" validate:"omitempty,min=1,max=28"`
	Notes           string  `json:"notes"`
}

// LeaseUpdateRequest edits a draft lease
type LeaseUpdateRequest struct {
	Unit            *string  `json:"unit"`
	StartDate       *string  `json:"start_date"`
	EndDate         *string  `json:"end_date"`
	MonthlyRent     *float64 `json:"monthly_rent" validate:"omitempty,gt=0"`
	SecurityDeposit *float64 `json:"security_deposit" validate:"omitempty,gte=0"`
	PaymentDueDay   *int     `json:"payment_due_day" validate:"omitempty,min=1,max=28"`
	Notes           *string  `json:"notes"`
}

// TerminateRequest ends an active lease early
type TerminateRequest struct {
	Reason string `json:"reason"`
}

// ListLeases returns the leases visible to the caller
func (h *Handler) ListLeases(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "list leases")
	}

	propertyID, err := queryID(c, "property_id")
	if err != nil {
		return respond(c, log, err, "list leases")
	}
	tenantID, err := queryID(c, "tenant_id")
	if err != nil {
		return respond(c, log, err, "list leases")
	}

	leases, err := h.svc.Leases.List(c.Request().Context(), a, service.LeaseFilter{
		Status:     model.LeaseStatus(c.QueryParam("status")),
		PropertyID: propertyID,
		TenantID:   tenantID,
	})
	if err != nil {
		return respond(c, log, err, "list leases")
	}

	log.Info("Leases listed", zap.Int("count", len(leases)))
	return c.JSON(http.StatusOK, leases)
}

// GetLease returns one lease
func (h *Handler) GetLease(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "get lease")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "get lease")
	}

	lease, err := h.svc.Leases.Get(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "get lease")
	}
	return c.JSON(http.StatusOK, lease)
}

// CreateLease drafts a lease
func (h *Handler) CreateLease(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "create lease")
	}

	var req LeaseRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "create lease")
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return respond(c, log, err, "create lease")
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return respond(c, log, err, "create lease")
	}

	lease, err := h.svc.Leases.Create(c.Request().Context(), a, service.LeaseInput{
		PropertyID:      req.PropertyID,
		TenantID:        req.TenantID,
		Unit:            req.Unit,
		StartDate:       start,
		EndDate:         end,
		MonthlyRent:     req.MonthlyRent,
		SecurityDeposit: req.SecurityDeposit,
		Currency:        req.Currency,
		PaymentDueDay:   req.PaymentDueDay,
		Notes:           req.Notes,
	})
	if err != nil {
		return respond(c, log, err, "create lease")
	}

	log.Info("Lease created",
		zap.Uint("lease_id", lease.ID),
		zap.Uint("property_id", lease.PropertyID),
		zap.Uint("tenant_id", lease.TenantID))
	return c.JSON(http.StatusCreated, lease)
}

// UpdateLease edits a draft lease
func (h *Handler) UpdateLease(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update lease")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "update lease")
	}

	var req LeaseUpdateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update lease")
	}
	start, err := parseDatePtr("start_date", req.StartDate)
	if err != nil {
		return respond(c, log, err, "update lease")
	}
	end, err := parseDatePtr("end_date", req.EndDate)
	if err != nil {
		return respond(c, log, err, "update lease")
	}

	lease, err := h.svc.Leases.Update(c.Request().Context(), a, id, service.LeaseUpdate{
		Unit:            req.Unit,
		StartDate:       start,
		EndDate:         end,
		MonthlyRent:     req.MonthlyRent,
		SecurityDeposit: req.SecurityDeposit,
		PaymentDueDay:   req.PaymentDueDay,
		Notes:           req.Notes,
	})
	if err != nil {
		return respond(c, log, err, "update lease")
	}

	log.Info("Lease updated", zap.Uint("lease_id", lease.ID))
	return c.JSON(http.StatusOK, lease)
}

// DeleteLease removes a draft lease
func (h *Handler) DeleteLease(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "delete lease")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "delete lease")
	}

	if err := h.svc.Leases.Delete(c.Request().Context(), a, id); err != nil {
		return respond(c, log, err, "delete lease")
	}

	log.Info("Lease deleted", zap.Uint("lease_id", id))
	return c.NoContent(http.StatusNoContent)
}

// ActivateLease moves a draft lease to active without waiting for a payment
func (h *Handler) ActivateLease(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "activate lease")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "activate lease")
	}

	lease, err := h.svc.Leases.Activate(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "activate lease")
	}

	log.Info("Lease activated", zap.Uint("lease_id", lease.ID))
	return c.JSON(http.StatusOK, lease)
}

// TerminateLease ends a lease early
func (h *Handler) TerminateLease(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "terminate lease")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "terminate lease")
	}

	var req TerminateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "terminate lease")
	}

	lease, err := h.svc.Leases.Terminate(c.Request().Context(), a, id, req.Reason)
	if err != nil {
		return respond(c, log, err, "terminate lease")
	}

	log.Info("Lease terminated", zap.Uint("lease_id", lease.ID))
	return c.JSON(http.StatusOK, lease)
}

// LeaseReminder returns the rent reminder and its contact links
func (h *Handler) LeaseReminder(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "build reminder")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "build reminder")
	}

	reminder, err := h.svc.Leases.Reminder(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "build reminder")
	}
	return c.JSON(http.StatusOK, reminder)
}
