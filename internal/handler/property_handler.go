package handler

import (
	"net/http"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// PropertyRequest creates a property
type PropertyRequest struct {
	Name         string  `json:"name" validate:"required"`
	Address      string  `json:"address" validate:"required"`
	City         string  `json:"city"`
	PropertyType string  `json:"property_type" validate:"omitempty,oneof=apartment house commercial room"`
	Units        int     `json:"units" validate:"gte=0"`
	MonthlyRent  float64 `json:"monthly_rent" validate:"gte=0"`
	Currency     string  `json:"currency" validate:"omitempty,len=3"`
	Description  string  `json:"description"`
	LandlordID   uint    `json:"landlord_id"`
	ManagerID    *uint   `json:"manager_id"`
}

// PropertyUpdateRequest edits a property
type PropertyUpdateRequest struct {
	Name         *string  `json:"name"`
	Address      *string  `json:"address"`
	City         *string  `json:"city"`
	PropertyType *string  `json:"property_type" validate:"omitempty,oneof=apartment house commercial room"`
	Units        *int     `json:"units" validate:"omitempty,gte=0"`
	MonthlyRent  *float64 `json:"monthly_rent" validate:"omitempty,gte=0"`
	Description  *string  `json:"description"`
	IsActive     *bool    `json:"is_active"`
	ManagerID    *uint    `json:"manager_id"`
}

// ListProperties returns the properties visible to the caller
func (h *Handler) ListProperties(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "list properties")
	}

	active, err := queryBool(c, "active")
	if err != nil {
		return respond(c, log, err, "list properties")
	}

	properties, err := h.svc.Properties.List(c.Request().Context(), a, service.PropertyFilter{
		City:   c.QueryParam("city"),
		Type:   model.PropertyType(c.QueryParam("type")),
		Active: active,
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return respond(c, log, err, "list properties")
	}

	log.Info("Properties listed", zap.Int("count", len(properties)))
	return c.JSON(http.StatusOK, properties)
}

// GetProperty returns one property
func (h *Handler) GetProperty(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "get property")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "get property")
	}

	property, err := h.svc.Properties.Get(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "get property")
	}
	return c.JSON(http.StatusOK, property)
}

// CreateProperty adds a property
func (h *Handler) CreateProperty(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "create property")
	}

	var req PropertyRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "create property")
	}

	property, err := h.svc.Properties.Create(c.Request().Context(), a, service.PropertyInput{
		Name:         req.Name,
		Address:      req.Address,
		City:         req.City,
		PropertyType: model.PropertyType(req.PropertyType),
		Units:        req.Units,
		MonthlyRent:  req.MonthlyRent,
		Currency:     req.Currency,
		Description:  req.Description,
		LandlordID:   req.LandlordID,
		ManagerID:    req.ManagerID,
	})
	if err != nil {
		return respond(c, log, err, "create property")
	}

	log.Info("Property created",
		zap.Uint("property_id", property.ID),
		zap.Uint("landlord_id", property.LandlordID))
	return c.JSON(http.StatusCreated, property)
}

// UpdateProperty edits a property
func (h *Handler) UpdateProperty(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update property")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "update property")
	}

	var req PropertyUpdateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update property")
	}

	in := service.PropertyUpdate{
		Name:        req.Name,
		Address:     req.Address,
		City:        req.City,
		Units:       req.Units,
		MonthlyRent: req.MonthlyRent,
		Description: req.Description,
		IsActive:    req.IsActive,
		ManagerID:   req.ManagerID,
	}
	if req.PropertyType != nil {
		t := model.PropertyType(*req.PropertyType)
		in.PropertyType = &t
	}

	property, err := h.svc.Properties.Update(c.Request().Context(), a, id, in)
	if err != nil {
		return respond(c, log, err, "update property")
	}

	log.Info("Property updated", zap.Uint("property_id", property.ID))
	return c.JSON(http.StatusOK, property)
}

// DeleteProperty removes a property with no active lease
func (h *Handler) DeleteProperty(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "delete property")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "delete property")
	}

	if err := h.svc.Properties.Delete(c.Request().Context(), a, id); err != nil {
		return respond(c, log, err, "delete property")
	}

	log.Info("Property deleted", zap.Uint("property_id", id))
	return c.NoContent(http.StatusNoContent)
}
