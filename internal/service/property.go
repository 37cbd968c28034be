package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/money"
	"gorm.io/gorm"
)

// PropertyService manages properties.
type PropertyService struct {
	*base
}

// PropertyInput creates a property. LandlordID is only honoured for admins;
// landlords always own what they create.
type PropertyInput struct {
	Name         string
	Address      string
	City         string
	PropertyType model.PropertyType
	Units        int
	MonthlyRent  float64
	Currency     string
	Description  string
	LandlordID   uint
	ManagerID    *uint
}

// PropertyUpdate edits a property. Nil fields are left alone.
type PropertyUpdate struct {
	Name         *string
	Address      *string
	City         *string
	PropertyType *model.PropertyType
	Units        *int
	MonthlyRent  *float64
	Description  *string
	IsActive     *bool
	// ManagerID of 0 removes the manager.
	ManagerID *uint
}

// PropertyFilter narrows List.
type PropertyFilter struct {
	City   string
	Type   model.PropertyType
	Active *bool
	Search string
}

func (s *PropertyService) scoped(ctx context.Context, actor policy.Actor) *gorm.DB {
	return s.conn(ctx).Scopes(actor.Properties)
}

// List returns the properties visible to the actor.
func (s *PropertyService) List(ctx context.Context, actor policy.Actor, f PropertyFilter) ([]model.Property, error) {
	if err := s.policy.Authorize(actor, policy.ResourceProperty, policy.ActionList); err != nil {
		return nil, err
	}

	query := s.scoped(ctx, actor).Model(&model.Property{})
	if f.City != "" {
		query = query.Where("LOWER(properties.city) = ?", strings.ToLower(f.City))
	}
	if f.Type != "" {
		query = query.Where("properties.property_type = ?", f.Type)
	}
	if f.Active != nil {
		query = query.Where("properties.is_active = ?", *f.Active)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(properties.name) LIKE ? OR LOWER(properties.address) LIKE ?", like, like)
	}

	var properties []model.Property
	if err := query.Preload("Manager").Order("properties.name, properties.id").Find(&properties).Error; err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return properties, nil
}

// Get returns one property visible to the actor.
func (s *PropertyService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.Property, error) {
	if err := s.policy.Authorize(actor, policy.ResourceProperty, policy.ActionRead); err != nil {
		return nil, err
	}
	return find[model.Property](s.scoped(ctx, actor).Preload("Landlord").Preload("Manager"), "property", id)
}

func (s *PropertyService) checkManager(db *gorm.DB, id uint) error {
	manager, err := find[model.User](db, "manager", id)
	if errors.Is(err, ErrNotFound) {
		return validationf("manager_id %d does not exist", id)
	}
	if err != nil {
		return err
	}
	if manager.Role != model.RoleManager {
		return validationf("user %d is not a manager", id)
	}
	return nil
}

// Create adds a property.
func (s *PropertyService) Create(ctx context.Context, actor policy.Actor, in PropertyInput) (*model.Property, error) {
	if err := s.policy.Authorize(actor, policy.ResourceProperty, policy.ActionCreate); err != nil {
		return nil, err
	}

	landlordID := actor.UserID
	if actor.Role == model.RoleAdmin {
		if in.LandlordID == 0 {
			return nil, validationf("landlord_id is required")
		}
		landlord, err := find[model.User](s.conn(ctx), "landlord", in.LandlordID)
		if errors.Is(err, ErrNotFound) {
			return nil, validationf("landlord_id %d does not exist", in.LandlordID)
		}
		if err != nil {
			return nil, err
		}
		if landlord.Role != model.RoleLandlord {
			return nil, validationf("user %d is not a landlord", in.LandlordID)
		}
		landlordID = landlord.ID
	}

	if strings.TrimSpace(in.Name) == "" {
		return nil, validationf("name is required")
	}
	if in.PropertyType == "" {
		in.PropertyType = model.PropertyApartment
	}
	if !in.PropertyType.Valid() {
		return nil, validationf("unknown property type %q", in.PropertyType)
	}
	if in.Units < 1 {
		in.Units = 1
	}
	if in.MonthlyRent < 0 {
		return nil, validationf("monthly_rent cannot be negative")
	}
	currency := strings.ToUpper(currencyOr(in.Currency, s.opts.Currency))
	if !money.Valid(currency) {
		return nil, validationf("unknown currency %q", currency)
	}
	if in.ManagerID != nil {
		if err := s.checkManager(s.conn(ctx), *in.ManagerID); err != nil {
			return nil, err
		}
	}

	property := &model.Property{
		Name:         strings.TrimSpace(in.Name),
		Address:      strings.TrimSpace(in.Address),
		City:         strings.TrimSpace(in.City),
		PropertyType: in.PropertyType,
		Units:        in.Units,
		MonthlyRent:  money.Round(in.MonthlyRent),
		Currency:     currency,
		Description:  in.Description,
		LandlordID:   landlordID,
		ManagerID:    in.ManagerID,
		IsActive:     true,
	}
	if err := s.conn(ctx).Create(property).Error; err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}
	return property, nil
}

// Update edits a property. Only the landlord or an admin may change the
// manager.
func (s *PropertyService) Update(ctx context.Context, actor policy.Actor, id uint, in PropertyUpdate) (*model.Property, error) {
	if err := s.policy.Authorize(actor, policy.ResourceProperty, policy.ActionUpdate); err != nil {
		return nil, err
	}
	property, err := find[model.Property](s.scoped(ctx, actor), "property", id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationf("name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Address != nil {
		updates["address"] = strings.TrimSpace(*in.Address)
	}
	if in.City != nil {
		updates["city"] = strings.TrimSpace(*in.City)
	}
	if in.PropertyType != nil {
		if !in.PropertyType.Valid() {
			return nil, validationf("unknown property type %q", *in.PropertyType)
		}
		updates["property_type"] = *in.PropertyType
	}
	if in.Units != nil {
		if *in.Units < 1 {
			return nil, validationf("units must be at least 1")
		}
		updates["units"] = *in.Units
	}
	if in.MonthlyRent != nil {
		if *in.MonthlyRent < 0 {
			return nil, validationf("monthly_rent cannot be negative")
		}
		updates["monthly_rent"] = money.Round(*in.MonthlyRent)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.ManagerID != nil {
		if actor.Role == model.RoleManager {
			return nil, fmt.Errorf("%w: managers cannot reassign properties", ErrForbidden)
		}
		if *in.ManagerID == 0 {
			updates["manager_id"] = nil
		} else {
			if err := s.checkManager(s.conn(ctx), *in.ManagerID); err != nil {
				return nil, err
			}
			updates["manager_id"] = *in.ManagerID
		}
	}

	if len(updates) > 0 {
		if err := s.conn(ctx).Model(property).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update property: %w", err)
		}
	}
	return find[model.Property](s.conn(ctx).Preload("Manager"), "property", id)
}

// Delete removes a property that has no draft or active lease.
func (s *PropertyService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	if err := s.policy.Authorize(actor, policy.ResourceProperty, policy.ActionDelete); err != nil {
		return err
	}
	property, err := find[model.Property](s.scoped(ctx, actor), "property", id)
	if err != nil {
		return err
	}

	var open int64
	if err := s.conn(ctx).Model(&model.Lease{}).
		Where("property_id = ? AND status IN ?", property.ID, openLeaseStatuses).
		Count(&open).Error; err != nil {
		return fmt.Errorf("count leases: %w", err)
	}
	if open > 0 {
		return conflictf("property has %d draft or active lease(s)", open)
	}

	if err := s.conn(ctx).Delete(property).Error; err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return nil
}
