package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/Go-ku/landlord-app-sub001/pkg/markdown"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaintenanceService manages maintenance tickets.
type MaintenanceService struct {
	*base
}

// MaintenanceInput files a ticket.
type MaintenanceInput struct {
	PropertyID  uint
	LeaseID     *uint
	Title       string
	Description string
	Category    model.MaintenanceCategory
	Priority    model.MaintenancePriority
	AssignedTo  string
}

// MaintenanceUpdate edits an open ticket. Nil fields are left alone.
type MaintenanceUpdate struct {
	Title       *string
	Description *string
	Category    *model.MaintenanceCategory
	Priority    *model.MaintenancePriority
	AssignedTo  *string
}

// MaintenanceFilter narrows List.
type MaintenanceFilter struct {
	Status     model.MaintenanceStatus
	Priority   model.MaintenancePriority
	Category   model.MaintenanceCategory
	PropertyID uint
}

func (s *MaintenanceService) scoped(db *gorm.DB, actor policy.Actor) *gorm.DB {
	return db.Scopes(actor.PropertyRows("maintenance_requests"))
}

func render(ctx context.Context, m *model.MaintenanceRequest) {
	html, err := markdown.Render(m.Description)
	if err != nil {
		logger.FromStdContext(ctx).Warn("Failed to render maintenance description",
			zap.Uint("maintenance_id", m.ID), zap.Error(err))
		return
	}
	m.DescriptionHTML = html
}

func (s *MaintenanceService) load(ctx context.Context, db *gorm.DB, actor policy.Actor, id uint) (*model.MaintenanceRequest, error) {
	m, err := find[model.MaintenanceRequest](s.scoped(db, actor), "maintenance request", id)
	if err != nil {
		return nil, err
	}
	render(ctx, m)
	return m, nil
}

// List returns the tickets visible to the actor, newest first.
func (s *MaintenanceService) List(ctx context.Context, actor policy.Actor, f MaintenanceFilter) ([]model.MaintenanceRequest, error) {
	if err := s.policy.Authorize(actor, policy.ResourceMaintenance, policy.ActionList); err != nil {
		return nil, err
	}

	query := s.scoped(s.conn(ctx), actor).Model(&model.MaintenanceRequest{})
	if f.Status != "" {
		query = query.Where("maintenance_requests.status = ?", f.Status)
	}
	if f.Priority != "" {
		query = query.Where("maintenance_requests.priority = ?", f.Priority)
	}
	if f.Category != "" {
		query = query.Where("maintenance_requests.category = ?", f.Category)
	}
	if f.PropertyID != 0 {
		query = query.Where("maintenance_requests.property_id = ?", f.PropertyID)
	}

	var requests []model.MaintenanceRequest
	err := query.Preload("Property").
		Order("maintenance_requests.created_at DESC, maintenance_requests.id DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("list maintenance requests: %w", err)
	}
	for i := range requests {
		render(ctx, &requests[i])
	}
	return requests, nil
}

// Get returns one ticket visible to the actor.
func (s *MaintenanceService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.MaintenanceRequest, error) {
	if err := s.policy.Authorize(actor, policy.ResourceMaintenance, policy.ActionRead); err != nil {
		return nil, err
	}
	return s.load(ctx, s.conn(ctx).Preload("Property").Preload("Tenant"), actor, id)
}

// Create files a ticket. Tenants file against a property they hold a
// draft or active lease on; staff file against properties they control.
func (s *MaintenanceService) Create(ctx context.Context, actor policy.Actor, in MaintenanceInput) (*model.MaintenanceRequest, error) {
	if err := s.policy.Authorize(actor, policy.ResourceMaintenance, policy.ActionCreate); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationf("title is required")
	}
	if in.Category == "" {
		in.Category = model.CategoryOther
	}
	if !in.Category.Valid() {
		return nil, validationf("unknown category %q", in.Category)
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, validationf("unknown priority %q", in.Priority)
	}

	db := s.conn(ctx)
	property, err := find[model.Property](db.Scopes(actor.Properties), "property", in.PropertyID)
	if err != nil {
		return nil, err
	}

	request := &model.MaintenanceRequest{
		PropertyID:  property.ID,
		ReportedBy:  actor.UserID,
		Title:       title,
		Description: in.Description,
		Category:    in.Category,
		Priority:    in.Priority,
		Status:      model.MaintenanceOpen,
		AssignedTo:  strings.TrimSpace(in.AssignedTo),
	}

	var lease model.Lease
	query := db.Where("property_id = ?", property.ID)
	if actor.Role == model.RoleTenant {
		query = query.Where("tenant_id = ? AND status IN ?", actor.UserID, []model.LeaseStatus{model.LeaseDraft, model.LeaseActive})
		if in.LeaseID != nil {
			query = query.Where("id = ?", *in.LeaseID)
		}
		err := query.Order("status = 'active' DESC, id DESC").First(&lease).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no current lease on property %d", ErrForbidden, property.ID)
		}
		if err != nil {
			return nil, dbError("lease", err)
		}
	} else if in.LeaseID != nil {
		err := query.First(&lease, *in.LeaseID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationf("lease %d is not on property %d", *in.LeaseID, property.ID)
		}
		if err != nil {
			return nil, dbError("lease", err)
		}
	}
	if lease.ID != 0 {
		request.LeaseID = &lease.ID
		request.TenantID = &lease.TenantID
	}

	if err := db.Create(request).Error; err != nil {
		return nil, fmt.Errorf("create maintenance request: %w", err)
	}
	prometheus.RecordMaintenanceTransition(string(model.MaintenanceOpen))
	render(ctx, request)
	return request, nil
}

// Update edits a ticket that is not closed or cancelled.
func (s *MaintenanceService) Update(ctx context.Context, actor policy.Actor, id uint, in MaintenanceUpdate) (*model.MaintenanceRequest, error) {
	if err := s.policy.Authorize(actor, policy.ResourceMaintenance, policy.ActionUpdate); err != nil {
		return nil, err
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := find[model.MaintenanceRequest](s.scoped(forUpdate(tx), actor), "maintenance request", id)
		if err != nil {
			return err
		}
		if m.Status.Final() {
			return conflictf("maintenance request is %s", m.Status)
		}

		updates := map[string]interface{}{}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return validationf("title cannot be empty")
			}
			updates["title"] = title
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.Category != nil {
			if !in.Category.Valid() {
				return validationf("unknown category %q", *in.Category)
			}
			updates["category"] = *in.Category
		}
		if in.Priority != nil {
			if !in.Priority.Valid() {
				return validationf("unknown priority %q", *in.Priority)
			}
			updates["priority"] = *in.Priority
		}
		if in.AssignedTo != nil {
			updates["assigned_to"] = strings.TrimSpace(*in.AssignedTo)
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(m).Omit(clause.Associations).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

// Transition moves a ticket to another status. Cancelling is its own
// permission so tenants can withdraw their tickets. Resolving requires
// notes.
func (s *MaintenanceService) Transition(ctx context.Context, actor policy.Actor, id uint, to model.MaintenanceStatus, notes string) (*model.MaintenanceRequest, error) {
	action := policy.ActionTransition
	if to == model.MaintenanceCancelled {
		action = policy.ActionCancel
	}
	if err := s.policy.Authorize(actor, policy.ResourceMaintenance, action); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, validationf("unknown status %q", to)
	}
	notes = strings.TrimSpace(notes)

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := find[model.MaintenanceRequest](s.scoped(forUpdate(tx), actor), "maintenance request", id)
		if err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(to) {
			return transitionError("maintenance request", m.Status, to)
		}

		updates := map[string]interface{}{"status": to}
		switch to {
		case model.MaintenanceResolved:
			if notes == "" {
				return validationf("resolution notes are required")
			}
			updates["resolved_at"] = s.now()
			updates["resolution_notes"] = notes
		case model.MaintenanceClosed:
			updates["closed_at"] = s.now()
		case model.MaintenanceInProgress:
			if m.Status == model.MaintenanceResolved {
				updates["resolved_at"] = nil
			}
		}
		if notes != "" && to != model.MaintenanceResolved {
			updates["resolution_notes"] = notes
		}
		return tx.Model(m).Omit(clause.Associations).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordMaintenanceTransition(string(to))
	return s.Get(ctx, actor, id)
}

// Delete removes a ticket.
func (s *MaintenanceService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	if err := s.policy.Authorize(actor, policy.ResourceMaintenance, policy.ActionDelete); err != nil {
		return err
	}
	m, err := find[model.MaintenanceRequest](s.scoped(s.conn(ctx), actor), "maintenance request", id)
	if err != nil {
		return err
	}
	if err := s.conn(ctx).Delete(m).Error; err != nil {
		return fmt.Errorf("delete maintenance request: %w", err)
	}
	return nil
}
