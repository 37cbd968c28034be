package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/deeplink"
	"github.com/Go-ku/landlord-app-sub001/pkg/money"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"gorm.io/gorm"
)

// openLeaseStatuses are the lease states that keep their tenant and
// property from being deleted.
var openLeaseStatuses = []model.LeaseStatus{model.LeaseDraft, model.LeaseActive}

// LeaseService manages leases and their lifecycle.
type LeaseService struct {
	*base
}

// LeaseInput creates a lease.
type LeaseInput struct {
	PropertyID      uint
	TenantID        uint
	Unit            string
	StartDate       time.Time
	EndDate         time.Time
	MonthlyRent     float64
	SecurityDeposit float64
	Currency        string
	PaymentDueDay   int
	Notes           string
}

// LeaseUpdate edits a draft lease. Nil fields are left alone.
type LeaseUpdate struct {
	Unit            *string
	StartDate       *time.Time
	EndDate         *time.Time
	MonthlyRent     *float64
	SecurityDeposit *float64
	PaymentDueDay   *int
	Notes           *string
}

// LeaseFilter narrows List.
type LeaseFilter struct {
	Status     model.LeaseStatus
	PropertyID uint
	TenantID   uint
}

// Reminder is a rent reminder with ready-made share links.
type Reminder struct {
	LeaseID     uint       `json:"lease_id"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Amount      float64    `json:"amount"`
	Outstanding float64    `json:"outstanding"`
	Currency    string     `json:"currency"`
	Message     string     `json:"message"`
	WhatsApp    string     `json:"whatsapp_url"`
	Email       string     `json:"email_url"`
	Calendar    string     `json:"calendar_url"`
}

func (s *LeaseService) scoped(db *gorm.DB, actor policy.Actor) *gorm.DB {
	return db.Scopes(actor.PropertyRows("leases"))
}

func validateTerm(start, end time.Time, rent, deposit float64, dueDay int) error {
	if start.IsZero() || end.IsZero() {
		return validationf("start_date and end_date are required")
	}
	if !end.After(start) {
		return validationf("end_date must be after start_date")
	}
	if rent <= 0 {
		return validationf("monthly_rent must be greater than 0")
	}
	if deposit < 0 {
		return validationf("security_deposit cannot be negative")
	}
	if dueDay < 1 || dueDay > 28 {
		return validationf("payment_due_day must be between 1 and 28")
	}
	return nil
}

// List returns the leases visible to the actor, newest first.
func (s *LeaseService) List(ctx context.Context, actor policy.Actor, f LeaseFilter) ([]model.Lease, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionList); err != nil {
		return nil, err
	}

	query := s.scoped(s.conn(ctx), actor).Model(&model.Lease{})
	if f.Status != "" {
		query = query.Where("leases.status = ?", f.Status)
	}
	if f.PropertyID != 0 {
		query = query.Where("leases.property_id = ?", f.PropertyID)
	}
	if f.TenantID != 0 {
		query = query.Where("leases.tenant_id = ?", f.TenantID)
	}

	var leases []model.Lease
	err := query.Preload("Property").Preload("Tenant").
		Order("leases.start_date DESC, leases.id DESC").
		Find(&leases).Error
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	return leases, nil
}

// Get returns one lease visible to the actor.
func (s *LeaseService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.Lease, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionRead); err != nil {
		return nil, err
	}
	return find[model.Lease](s.scoped(s.conn(ctx), actor).Preload("Property").Preload("Tenant"), "lease", id)
}

// Create drafts a lease on a property the actor controls.
func (s *LeaseService) Create(ctx context.Context, actor policy.Actor, in LeaseInput) (*model.Lease, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionCreate); err != nil {
		return nil, err
	}
	if in.PaymentDueDay == 0 {
		in.PaymentDueDay = 1
	}
	in.StartDate, in.EndDate = model.DateOnly(in.StartDate), model.DateOnly(in.EndDate)
	if err := validateTerm(in.StartDate, in.EndDate, in.MonthlyRent, in.SecurityDeposit, in.PaymentDueDay); err != nil {
		return nil, err
	}

	db := s.conn(ctx)
	property, err := find[model.Property](db.Scopes(actor.Properties), "property", in.PropertyID)
	if err != nil {
		return nil, err
	}

	tenant, err := find[model.User](db, "tenant", in.TenantID)
	if errors.Is(err, ErrNotFound) {
		return nil, validationf("tenant_id %d does not exist", in.TenantID)
	}
	if err != nil {
		return nil, err
	}
	if tenant.Role != model.RoleTenant {
		return nil, validationf("user %d is not a tenant", in.TenantID)
	}
	if !tenant.IsActive {
		return nil, validationf("tenant %d is inactive", in.TenantID)
	}

	currency := strings.ToUpper(currencyOr(in.Currency, currencyOr(property.Currency, s.opts.Currency)))
	if !money.Valid(currency) {
		return nil, validationf("unknown currency %q", currency)
	}

	lease := &model.Lease{
		PropertyID:      property.ID,
		TenantID:        tenant.ID,
		LandlordID:      property.LandlordID,
		Unit:            strings.TrimSpace(in.Unit),
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		MonthlyRent:     money.Round(in.MonthlyRent),
		SecurityDeposit: money.Round(in.SecurityDeposit),
		Currency:        currency,
		PaymentDueDay:   in.PaymentDueDay,
		Status:          model.LeaseDraft,
		Notes:           in.Notes,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := db.Create(lease).Error; err != nil {
		return nil, fmt.Errorf("create lease: %w", err)
	}
	prometheus.RecordLeaseTransition(string(model.LeaseDraft))
	return lease, nil
}

// Update edits a lease while it is still a draft.
func (s *LeaseService) Update(ctx context.Context, actor policy.Actor, id uint, in LeaseUpdate) (*model.Lease, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionUpdate); err != nil {
		return nil, err
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := find[model.Lease](s.scoped(forUpdate(tx), actor), "lease", id)
		if err != nil {
			return err
		}
		if lease.Status != model.LeaseDraft {
			return conflictf("lease is %s; only draft leases can be edited", lease.Status)
		}

		if in.Unit != nil {
			lease.Unit = strings.TrimSpace(*in.Unit)
		}
		if in.StartDate != nil {
			lease.StartDate = model.DateOnly(*in.StartDate)
		}
		if in.EndDate != nil {
			lease.EndDate = model.DateOnly(*in.EndDate)
		}
		if in.MonthlyRent != nil {
			lease.MonthlyRent = money.Round(*in.MonthlyRent)
		}
		if in.SecurityDeposit != nil {
			lease.SecurityDeposit = money.Round(*in.SecurityDeposit)
		}
		if in.PaymentDueDay != nil {
			lease.PaymentDueDay = *in.PaymentDueDay
		}
		if in.Notes != nil {
			lease.Notes = *in.Notes
		}
		if err := validateTerm(lease.StartDate, lease.EndDate, lease.MonthlyRent, lease.SecurityDeposit, lease.PaymentDueDay); err != nil {
			return err
		}

		return tx.Model(lease).Updates(map[string]interface{}{
			"unit":             lease.Unit,
			"start_date":       lease.StartDate,
			"end_date":         lease.EndDate,
			"monthly_rent":     lease.MonthlyRent,
			"security_deposit": lease.SecurityDeposit,
			"payment_due_day":  lease.PaymentDueDay,
			"notes":            lease.Notes,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

// Delete removes a draft lease.
func (s *LeaseService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionDelete); err != nil {
		return err
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := find[model.Lease](s.scoped(forUpdate(tx), actor), "lease", id)
		if err != nil {
			return err
		}
		if lease.Status != model.LeaseDraft {
			return conflictf("lease is %s; only draft leases can be deleted", lease.Status)
		}
		return tx.Delete(lease).Error
	})
}

// Activate moves a draft lease to active. Activating an active lease
// returns it unchanged.
func (s *LeaseService) Activate(ctx context.Context, actor policy.Actor, id uint) (*model.Lease, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionActivate); err != nil {
		return nil, err
	}

	var activated bool
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := find[model.Lease](s.scoped(forUpdate(tx), actor), "lease", id)
		if err != nil {
			return err
		}
		activated, err = s.activateTx(tx, lease)
		return err
	})
	if err != nil {
		return nil, err
	}
	if activated {
		prometheus.RecordLeaseTransition(string(model.LeaseActive))
	}
	return s.Get(ctx, actor, id)
}

// activateTx activates lease inside tx. The caller holds the row lock.
func (s *LeaseService) activateTx(tx *gorm.DB, lease *model.Lease) (bool, error) {
	if lease.Status == model.LeaseActive {
		return false, nil
	}
	if !lease.Status.CanTransitionTo(model.LeaseActive) {
		return false, transitionError("lease", lease.Status, model.LeaseActive)
	}
	if !lease.EndDate.After(s.today()) {
		return false, conflictf("lease ended on %s", lease.EndDate.Format(dateLayout))
	}

	var overlapping int64
	err := tx.Model(&model.Lease{}).
		Where("property_id = ? AND unit = ? AND status = ? AND id <> ?", lease.PropertyID, lease.Unit, model.LeaseActive, lease.ID).
		Where("start_date < ? AND end_date > ?", lease.EndDate, lease.StartDate).
		Count(&overlapping).Error
	if err != nil {
		return false, fmt.Errorf("check overlapping leases: %w", err)
	}
	if overlapping > 0 {
		return false, conflictf("unit %q already has an active lease for these dates", lease.Unit)
	}

	now := s.now()
	if err := tx.Model(lease).Updates(map[string]interface{}{
		"status":       model.LeaseActive,
		"activated_at": now,
	}).Error; err != nil {
		return false, fmt.Errorf("activate lease: %w", err)
	}
	lease.Status = model.LeaseActive
	lease.ActivatedAt = &now
	return true, nil
}

// Terminate ends an active lease early.
func (s *LeaseService) Terminate(ctx context.Context, actor policy.Actor, id uint, reason string) (*model.Lease, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionTerminate); err != nil {
		return nil, err
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := find[model.Lease](s.scoped(forUpdate(tx), actor), "lease", id)
		if err != nil {
			return err
		}
		if !lease.Status.CanTransitionTo(model.LeaseTerminated) {
			return transitionError("lease", lease.Status, model.LeaseTerminated)
		}
		return tx.Model(lease).Updates(map[string]interface{}{
			"status":           model.LeaseTerminated,
			"terminated_at":    s.now(),
			"termination_note": strings.TrimSpace(reason),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordLeaseTransition(string(model.LeaseTerminated))
	return s.Get(ctx, actor, id)
}

// ExpireDue marks active leases whose end date has passed as expired.
func (s *LeaseService) ExpireDue(ctx context.Context) (int64, error) {
	result := s.conn(ctx).Model(&model.Lease{}).
		Where("status = ? AND end_date < ?", model.LeaseActive, s.today()).
		Update("status", model.LeaseExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("expire leases: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		prometheus.AddLeaseTransitions(string(model.LeaseExpired), result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// Reminder builds a rent reminder for the next due date. Staff get links
// addressed to the tenant; a tenant gets links addressed to the landlord.
func (s *LeaseService) Reminder(ctx context.Context, actor policy.Actor, id uint) (*Reminder, error) {
	if err := s.policy.Authorize(actor, policy.ResourceLease, policy.ActionRemind); err != nil {
		return nil, err
	}
	db := s.conn(ctx)
	lease, err := find[model.Lease](s.scoped(db, actor).Preload("Property").Preload("Tenant"), "lease", id)
	if err != nil {
		return nil, err
	}
	if lease.Status != model.LeaseActive && lease.Status != model.LeaseDraft {
		return nil, conflictf("lease is %s", lease.Status)
	}

	var outstanding float64
	err = db.Model(&model.Invoice{}).
		Where("lease_id = ? AND status IN ?", lease.ID, []model.InvoiceStatus{model.InvoiceSent, model.InvoiceOverdue}).
		Select("COALESCE(SUM(total - amount_paid), 0)").
		Scan(&outstanding).Error
	if err != nil {
		return nil, fmt.Errorf("sum outstanding: %w", err)
	}

	contact := lease.Tenant
	if actor.Role == model.RoleTenant {
		contact, err = find[model.User](db, "landlord", lease.LandlordID)
		if err != nil {
			return nil, err
		}
	}
	if contact == nil {
		contact = &model.User{}
	}

	reminder := &Reminder{
		LeaseID:     lease.ID,
		Amount:      lease.MonthlyRent,
		Outstanding: money.Round(outstanding),
		Currency:    lease.Currency,
	}
	propertyName := ""
	if lease.Property != nil {
		propertyName = lease.Property.Name
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "Hello %s, this is a reminder that rent of %s for %s",
		contact.FullName(), money.Format(lease.MonthlyRent, lease.Currency), propertyName)
	if lease.Unit != "" {
		fmt.Fprintf(&msg, " (unit %s)", lease.Unit)
	}
	due := lease.NextDueDate(s.today())
	if !due.IsZero() {
		reminder.DueDate = &due
		fmt.Fprintf(&msg, " is due on %s.", due.Format(dateLayout))
	} else {
		msg.WriteString(" is due.")
	}
	if reminder.Outstanding > 0 {
		fmt.Fprintf(&msg, " Outstanding balance: %s.", money.Format(reminder.Outstanding, lease.Currency))
	}
	if s.opts.PortalURL != "" {
		fmt.Fprintf(&msg, " %s/leases/%d", strings.TrimRight(s.opts.PortalURL, "/"), lease.ID)
	}
	reminder.Message = msg.String()

	reminder.WhatsApp = deeplink.WhatsApp(contact.Phone, s.opts.CountryCode, reminder.Message)
	reminder.Email = deeplink.GmailCompose(contact.Email, "Rent reminder: "+propertyName, reminder.Message)
	if !due.IsZero() {
		reminder.Calendar = deeplink.GoogleCalendar(deeplink.Event{
			Title:      "Rent due: " + propertyName,
			Details:    reminder.Message,
			Location:   addressOf(lease.Property),
			Start:      due,
			AllDay:     true,
			Recurrence: fmt.Sprintf("FREQ=MONTHLY;BYMONTHDAY=%d;UNTIL=%s", lease.PaymentDueDay, lease.EndDate.Format("20060102")),
		})
	}
	return reminder, nil
}

func addressOf(p *model.Property) string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, part := range []string{p.Address, p.City} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
