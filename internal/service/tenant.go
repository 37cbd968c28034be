package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
)

// TenantService manages tenant accounts on behalf of landlords and managers.
type TenantService struct {
	*base
}

// TenantInput creates a tenant account.
type TenantInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// TenantUpdate edits a tenant account. Nil fields are left alone.
type TenantUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	IsActive  *bool
}

// TenantFilter narrows List.
type TenantFilter struct {
	Search string
	Active *bool
}

// List returns the tenants visible to the actor.
func (s *TenantService) List(ctx context.Context, actor policy.Actor, f TenantFilter) ([]model.User, error) {
	if err := s.policy.Authorize(actor, policy.ResourceTenant, policy.ActionList); err != nil {
		return nil, err
	}

	query := s.conn(ctx).Model(&model.User{}).Scopes(actor.Tenants)
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(users.first_name) LIKE ? OR LOWER(users.last_name) LIKE ? OR LOWER(users.email) LIKE ?", like, like, like)
	}
	if f.Active != nil {
		query = query.Where("users.is_active = ?", *f.Active)
	}

	var tenants []model.User
	if err := query.Order("users.last_name, users.first_name, users.id").Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Get returns one tenant visible to the actor.
func (s *TenantService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.User, error) {
	if err := s.policy.Authorize(actor, policy.ResourceTenant, policy.ActionRead); err != nil {
		return nil, err
	}
	return find[model.User](s.conn(ctx).Scopes(actor.Tenants), "tenant", id)
}

// Create opens a tenant account owned by the actor.
func (s *TenantService) Create(ctx context.Context, actor policy.Actor, in TenantInput) (*model.User, error) {
	if err := s.policy.Authorize(actor, policy.ResourceTenant, policy.ActionCreate); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, validationf("email is required")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	createdBy := actor.UserID
	tenant := &model.User{
		Email:     email,
		Password:  hash,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      model.RoleTenant,
		IsActive:  true,
		CreatedBy: &createdBy,
	}
	if err := createAccount(s.conn(ctx), tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Update edits a tenant visible to the actor.
func (s *TenantService) Update(ctx context.Context, actor policy.Actor, id uint, in TenantUpdate) (*model.User, error) {
	if err := s.policy.Authorize(actor, policy.ResourceTenant, policy.ActionUpdate); err != nil {
		return nil, err
	}
	tenant, err := find[model.User](s.conn(ctx).Scopes(actor.Tenants), "tenant", id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) > 0 {
		if err := s.conn(ctx).Model(tenant).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update tenant: %w", err)
		}
	}
	return find[model.User](s.conn(ctx), "tenant", id)
}

// Delete removes a tenant account that holds no draft or active lease.
func (s *TenantService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	if err := s.policy.Authorize(actor, policy.ResourceTenant, policy.ActionDelete); err != nil {
		return err
	}
	tenant, err := find[model.User](s.conn(ctx).Scopes(actor.Tenants), "tenant", id)
	if err != nil {
		return err
	}

	var open int64
	if err := s.conn(ctx).Model(&model.Lease{}).
		Where("tenant_id = ? AND status IN ?", tenant.ID, openLeaseStatuses).
		Count(&open).Error; err != nil {
		return fmt.Errorf("count leases: %w", err)
	}
	if open > 0 {
		return conflictf("tenant has %d draft or active lease(s)", open)
	}

	if err := s.conn(ctx).Delete(tenant).Error; err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	return nil
}
