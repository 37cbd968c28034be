package handler

import (
	"net/http"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MaintenanceRequest files a maintenance ticket
type MaintenanceRequest struct {
	PropertyID  uint   `json:"property_id" validate:"required"`
	LeaseID     *uint  `json:"lease_id"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	AssignedTo  string `json:"assigned_to"`
}

// MaintenanceUpdateRequest edits a ticket
type MaintenanceUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Priority    *string `json:"priority"`
	AssignedTo  *string `json:"assigned_to"`
}

// StatusRequest moves a ticket to another status
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

// ListMaintenance returns the tickets visible to the caller
func (h *Handler) ListMaintenance(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "list maintenance requests")
	}

	propertyID, err := queryID(c, "property_id")
	if err != nil {
		return respond(c, log, err, "list maintenance requests")
	}

	requests, err := h.svc.Maintenance.List(c.Request().Context(), a, service.MaintenanceFilter{
		Status:     model.MaintenanceStatus(c.QueryParam("status")),
		Priority:   model.MaintenancePriority(c.QueryParam("priority")),
		Category:   model.MaintenanceCategory(c.QueryParam("category")),
		PropertyID: propertyID,
	})
	if err != nil {
		return respond(c, log, err, "list maintenance requests")
	}

	log.Info("Maintenance requests listed", zap.Int("count", len(requests)))
	return c.JSON(http.StatusOK, requests)
}

// GetMaintenance returns one ticket
func (h *Handler) GetMaintenance(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "get maintenance request")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "get maintenance request")
	}

	request, err := h.svc.Maintenance.Get(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "get maintenance request")
	}
	return c.JSON(http.StatusOK, request)
}

// CreateMaintenance files a ticket
func (h *Handler) CreateMaintenance(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "create maintenance request")
	}

	var req MaintenanceRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "create maintenance request")
	}

	request, err := h.svc.Maintenance.Create(c.Request().Context(), a, service.MaintenanceInput{
		PropertyID:  req.PropertyID,
		LeaseID:     req.LeaseID,
		Title:       req.Title,
		Description: req.Description,
		Category:    model.MaintenanceCategory(req.Category),
		Priority:    model.MaintenancePriority(req.Priority),
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		return respond(c, log, err, "create maintenance request")
	}

	log.Info("Maintenance request created",
		zap.Uint("maintenance_id", request.ID),
		zap.Uint("property_id", request.PropertyID),
		zap.String("priority", string(request.Priority)))
	return c.JSON(http.StatusCreated, request)
}

// UpdateMaintenance edits a ticket
func (h *Handler) UpdateMaintenance(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update maintenance request")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "update maintenance request")
	}

	var req MaintenanceUpdateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update maintenance request")
	}

	in := service.MaintenanceUpdate{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	}
	if req.Category != nil {
		category := model.MaintenanceCategory(*req.Category)
		in.Category = &category
	}
	if req.Priority != nil {
		priority := model.MaintenancePriority(*req.Priority)
		in.Priority = &priority
	}

	request, err := h.svc.Maintenance.Update(c.Request().Context(), a, id, in)
	if err != nil {
		return respond(c, log, err, "update maintenance request")
	}

	log.Info("Maintenance request updated", zap.Uint("maintenance_id", request.ID))
	return c.JSON(http.StatusOK, request)
}

// UpdateMaintenanceStatus moves a ticket through its workflow
func (h *Handler) UpdateMaintenanceStatus(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update maintenance status")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "update maintenance status")
	}

	var req StatusRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update maintenance status")
	}

	request, err := h.svc.Maintenance.Transition(c.Request().Context(), a, id, model.MaintenanceStatus(req.Status), req.Notes)
	if err != nil {
		return respond(c, log, err, "update maintenance status")
	}

	log.Info("Maintenance status changed",
		zap.Uint("maintenance_id", request.ID),
		zap.String("status", string(request.Status)))
	return c.JSON(http.StatusOK, request)
}

// DeleteMaintenance removes a ticket
func (h *Handler) DeleteMaintenance(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "delete maintenance request")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "delete maintenance request")
	}

	if err := h.svc.Maintenance.Delete(c.Request().Context(), a, id); err != nil {
		return respond(c, log, err, "delete maintenance request")
	}

	log.Info("Maintenance request deleted", zap.Uint("maintenance_id", id))
	return c.NoContent(http.StatusNoContent)
}
