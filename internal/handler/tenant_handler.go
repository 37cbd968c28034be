package handler

import (
	"net/http"

	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantRequest creates a tenant account
type TenantRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"omitempty,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone"`
}

// TenantUpdateRequest edits a tenant account
type TenantUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	IsActive  *bool   `json:"is_active"`
}

// ListTenants returns the tenants visible to the caller
func (h *Handler) ListTenants(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "list tenants")
	}

	active, err := queryBool(c, "active")
	if err != nil {
		return respond(c, log, err, "list tenants")
	}

	tenants, err := h.svc.Tenants.List(c.Request().Context(), a, service.TenantFilter{
		Search: c.QueryParam("search"),
		Active: active,
	})
	if err != nil {
		return respond(c, log, err, "list tenants")
	}

	log.Info("Tenants listed", zap.Int("count", len(tenants)))
	return c.JSON(http.StatusOK, tenants)
}

// GetTenant returns one tenant
func (h *Handler) GetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "get tenant")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "get tenant")
	}

	tenant, err := h.svc.Tenants.Get(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "get tenant")
	}
	return c.JSON(http.StatusOK, tenant)
}

// CreateTenant adds a tenant account
func (h *Handler) CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "create tenant")
	}

	var req TenantRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "create tenant")
	}

	tenant, err := h.svc.Tenants.Create(c.Request().Context(), a, service.TenantInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		return respond(c, log, err, "create tenant")
	}

	log.Info("Tenant created", zap.Uint("tenant_id", tenant.ID))
	return c.JSON(http.StatusCreated, tenant)
}

// UpdateTenant edits a tenant account
func (h *Handler) UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update tenant")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "update tenant")
	}

	var req TenantUpdateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update tenant")
	}

	tenant, err := h.svc.Tenants.Update(c.Request().Context(), a, id, service.TenantUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		IsActive:  req.IsActive,
	})
	if err != nil {
		return respond(c, log, err, "update tenant")
	}

	log.Info("Tenant updated", zap.Uint("tenant_id", tenant.ID))
	return c.JSON(http.StatusOK, tenant)
}

// DeleteTenant removes a tenant with no active lease
func (h *Handler) DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "delete tenant")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "delete tenant")
	}

	if err := h.svc.Tenants.Delete(c.Request().Context(), a, id); err != nil {
		return respond(c, log, err, "delete tenant")
	}

	log.Info("Tenant deleted", zap.Uint("tenant_id", id))
	return c.NoContent(http.StatusNoContent)
}
