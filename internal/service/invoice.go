package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/deeplink"
	"github.com/Go-ku/landlord-app-sub001/pkg/money"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceService manages invoices and their lifecycle.
type InvoiceService struct {
	*base
}

// ItemInput is one invoice line.
type ItemInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
}

// InvoiceInput creates an invoice against a lease.
type InvoiceInput struct {
	LeaseID   uint
	IssueDate time.Time
	DueDate   time.Time
	Items     []ItemInput
	TaxRate   float64
	Notes     string
}

// InvoiceUpdate edits a draft or sent invoice. Nil fields are left alone;
// a non-nil Items replaces every line.
type InvoiceUpdate struct {
	IssueDate *time.Time
	DueDate   *time.Time
	Items     *[]ItemInput
	TaxRate   *float64
	Notes     *string
}

// InvoiceFilter narrows List.
type InvoiceFilter struct {
	Status     model.InvoiceStatus
	LeaseID    uint
	PropertyID uint
	TenantID   uint
	DueBefore  time.Time
}

// ShareLinks are prefilled messages for sending an invoice to its tenant.
type ShareLinks struct {
	InvoiceID uint   `json:"invoice_id"`
	Number    string `json:"number"`
	Message   string `json:"message"`
	WhatsApp  string `json:"whatsapp_url"`
	Email     string `json:"email_url"`
	Calendar  string `json:"calendar_url"`
}

func (s *InvoiceService) scoped(db *gorm.DB, actor policy.Actor) *gorm.DB {
	return db.Scopes(actor.PropertyRows("invoices"))
}

// buildItems validates lines and computes their amounts.
func buildItems(in []ItemInput) ([]model.InvoiceItem, error) {
	if len(in) == 0 {
		return nil, validationf("an invoice needs at least one item")
	}
	items := make([]model.InvoiceItem, 0, len(in))
	for i, item := range in {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			return nil, validationf("item %d: description is required", i+1)
		}
		if item.Quantity <= 0 {
			return nil, validationf("item %d: quantity must be greater than 0", i+1)
		}
		if item.UnitPrice < 0 {
			return nil, validationf("item %d: unit_price cannot be negative", i+1)
		}
		items = append(items, model.InvoiceItem{
			Description: desc,
			Quantity:    money.Round(item.Quantity),
			UnitPrice:   money.Round(item.UnitPrice),
			Amount:      money.Round(item.Quantity * item.UnitPrice),
		})
	}
	return items, nil
}

// applyTotals recomputes subtotal, tax and total from the items.
func applyTotals(inv *model.Invoice) error {
	if inv.TaxRate < 0 || inv.TaxRate > 100 {
		return validationf("tax_rate must be between 0 and 100")
	}
	amounts := make([]float64, len(inv.Items))
	for i, item := range inv.Items {
		amounts[i] = item.Amount
	}
	inv.Subtotal = money.Sum(amounts...)
	inv.TaxAmount = money.Round(inv.Subtotal * inv.TaxRate / 100)
	inv.Total = money.Round(inv.Subtotal + inv.TaxAmount)
	return nil
}

func invoiceNumber(issue time.Time, id uint) string {
	return fmt.Sprintf("INV-%s-%06d", issue.Format("200601"), id)
}

// List returns the invoices visible to the actor, latest due date first.
func (s *InvoiceService) List(ctx context.Context, actor policy.Actor, f InvoiceFilter) ([]model.Invoice, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionList); err != nil {
		return nil, err
	}

	query := s.scoped(s.conn(ctx), actor).Model(&model.Invoice{})
	if f.Status != "" {
		query = query.Where("invoices.status = ?", f.Status)
	}
	if f.LeaseID != 0 {
		query = query.Where("invoices.lease_id = ?", f.LeaseID)
	}
	if f.PropertyID != 0 {
		query = query.Where("invoices.property_id = ?", f.PropertyID)
	}
	if f.TenantID != 0 {
		query = query.Where("invoices.tenant_id = ?", f.TenantID)
	}
	if !f.DueBefore.IsZero() {
		query = query.Where("invoices.due_date < ?", f.DueBefore)
	}

	var invoices []model.Invoice
	err := query.Preload("Tenant").Preload("Items").
		Order("invoices.due_date DESC, invoices.id DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// Get returns one invoice with its items.
func (s *InvoiceService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.Invoice, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionRead); err != nil {
		return nil, err
	}
	return find[model.Invoice](s.scoped(s.conn(ctx), actor).Preload("Items").Preload("Tenant").Preload("Lease"), "invoice", id)
}

func (s *InvoiceService) billableLease(db *gorm.DB, actor policy.Actor, id uint) (*model.Lease, error) {
	lease, err := find[model.Lease](db.Scopes(actor.PropertyRows("leases")), "lease", id)
	if err != nil {
		return nil, err
	}
	if lease.Status != model.LeaseDraft && lease.Status != model.LeaseActive {
		return nil, conflictf("lease is %s and can no longer be invoiced", lease.Status)
	}
	return lease, nil
}

// insert stores a new draft invoice and assigns its number.
func (s *InvoiceService) insert(tx *gorm.DB, lease *model.Lease, inv *model.Invoice) error {
	inv.LeaseID = lease.ID
	inv.TenantID = lease.TenantID
	inv.PropertyID = lease.PropertyID
	inv.Currency = currencyOr(lease.Currency, s.opts.Currency)
	inv.Status = model.InvoiceDraft
	if err := applyTotals(inv); err != nil {
		return err
	}

	// the number embeds the row id, so insert under a placeholder first
	inv.Number = "PENDING-" + uuid.NewString()
	if err := tx.Create(inv).Error; err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	inv.Number = invoiceNumber(inv.IssueDate, inv.ID)
	if err := tx.Model(inv).Omit(clause.Associations).Update("number", inv.Number).Error; err != nil {
		return fmt.Errorf("number invoice: %w", err)
	}
	return nil
}

// Create drafts an invoice against a lease the actor controls.
func (s *InvoiceService) Create(ctx context.Context, actor policy.Actor, in InvoiceInput) (*model.Invoice, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionCreate); err != nil {
		return nil, err
	}
	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}

	inv := &model.Invoice{
		IssueDate: model.DateOnly(in.IssueDate),
		DueDate:   model.DateOnly(in.DueDate),
		Items:     items,
		TaxRate:   money.Round(in.TaxRate),
		Notes:     in.Notes,
	}
	if in.IssueDate.IsZero() {
		inv.IssueDate = s.today()
	}

	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := s.billableLease(tx, actor, in.LeaseID)
		if err != nil {
			return err
		}
		if in.DueDate.IsZero() {
			inv.DueDate = lease.NextDueDate(inv.IssueDate)
			if inv.DueDate.IsZero() {
				inv.DueDate = inv.IssueDate.AddDate(0, 0, 14)
			}
		}
		if inv.DueDate.Before(inv.IssueDate) {
			return validationf("due_date cannot be before issue_date")
		}
		return s.insert(tx, lease, inv)
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordInvoiceTransition(string(model.InvoiceDraft))
	return s.Get(ctx, actor, inv.ID)
}

// Generate drafts the monthly rent invoice of a lease. month is any date
// within the billed month; the zero time bills the current month.
func (s *InvoiceService) Generate(ctx context.Context, actor policy.Actor, leaseID uint, month time.Time) (*model.Invoice, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionCreate); err != nil {
		return nil, err
	}
	if month.IsZero() {
		month = s.today()
	}

	var inv *model.Invoice
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := s.billableLease(forUpdate(tx), actor, leaseID)
		if err != nil {
			return err
		}

		first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
		if !first.Before(lease.EndDate) || !lease.StartDate.Before(first.AddDate(0, 1, 0)) {
			return validationf("%s is outside the lease term", first.Format("January 2006"))
		}
		description := "Rent " + first.Format("January 2006")

		var existing int64
		err = tx.Model(&model.InvoiceItem{}).
			Joins("JOIN invoices ON invoices.id = invoice_items.invoice_id").
			Where("invoices.lease_id = ? AND invoices.status <> ? AND invoices.deleted_at IS NULL", lease.ID, model.InvoiceCancelled).
			Where("invoice_items.description = ?", description).
			Count(&existing).Error
		if err != nil {
			return fmt.Errorf("check existing rent invoice: %w", err)
		}
		if existing > 0 {
			return conflictf("an invoice for %s already exists", description)
		}

		due := first.AddDate(0, 0, lease.PaymentDueDay-1)
		issue := s.today()
		if due.Before(issue) {
			issue = first
		}
		inv = &model.Invoice{
			IssueDate: issue,
			DueDate:   due,
			Items: []model.InvoiceItem{{
				Description: description,
				Quantity:    1,
				UnitPrice:   lease.MonthlyRent,
				Amount:      lease.MonthlyRent,
			}},
		}
		return s.insert(tx, lease, inv)
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordInvoiceTransition(string(model.InvoiceDraft))
	return s.Get(ctx, actor, inv.ID)
}

// Update edits an invoice in draft or sent status.
func (s *InvoiceService) Update(ctx context.Context, actor policy.Actor, id uint, in InvoiceUpdate) (*model.Invoice, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionUpdate); err != nil {
		return nil, err
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := find[model.Invoice](s.scoped(forUpdate(tx), actor), "invoice", id)
		if err != nil {
			return err
		}
		if !inv.Status.Editable() {
			return conflictf("invoice is %s; only draft or sent invoices can be edited", inv.Status)
		}
		if err := tx.Where("invoice_id = ?", inv.ID).Find(&inv.Items).Error; err != nil {
			return fmt.Errorf("load items: %w", err)
		}

		if in.IssueDate != nil {
			inv.IssueDate = model.DateOnly(*in.IssueDate)
		}
		if in.DueDate != nil {
			inv.DueDate = model.DateOnly(*in.DueDate)
		}
		if inv.DueDate.Before(inv.IssueDate) {
			return validationf("due_date cannot be before issue_date")
		}
		if in.TaxRate != nil {
			inv.TaxRate = money.Round(*in.TaxRate)
		}
		if in.Notes != nil {
			inv.Notes = *in.Notes
		}
		if in.Items != nil {
			items, err := buildItems(*in.Items)
			if err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&model.InvoiceItem{}).Error; err != nil {
				return fmt.Errorf("replace items: %w", err)
			}
			for i := range items {
				items[i].InvoiceID = inv.ID
			}
			if err := tx.Create(&items).Error; err != nil {
				return fmt.Errorf("replace items: %w", err)
			}
			inv.Items = items
		}
		if err := applyTotals(inv); err != nil {
			return err
		}
		if inv.Total < inv.AmountPaid {
			return validationf("total cannot be less than the %s already paid", money.Format(inv.AmountPaid, inv.Currency))
		}

		return tx.Model(inv).Omit(clause.Associations).Updates(map[string]interface{}{
			"issue_date": inv.IssueDate,
			"due_date":   inv.DueDate,
			"tax_rate":   inv.TaxRate,
			"notes":      inv.Notes,
			"subtotal":   inv.Subtotal,
			"tax_amount": inv.TaxAmount,
			"total":      inv.Total,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

func (s *InvoiceService) transition(ctx context.Context, actor policy.Actor, id uint, action policy.Action, to model.InvoiceStatus, check func(*gorm.DB, *model.Invoice) error) (*model.Invoice, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, action); err != nil {
		return nil, err
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := find[model.Invoice](s.scoped(forUpdate(tx), actor), "invoice", id)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransitionTo(to) {
			return transitionError("invoice", inv.Status, to)
		}
		if check != nil {
			if err := check(tx, inv); err != nil {
				return err
			}
		}
		updates := map[string]interface{}{"status": to}
		if to == model.InvoiceSent {
			updates["sent_at"] = s.now()
		}
		return tx.Model(inv).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordInvoiceTransition(string(to))
	return s.Get(ctx, actor, id)
}

// Send marks a draft invoice as sent to the tenant.
func (s *InvoiceService) Send(ctx context.Context, actor policy.Actor, id uint) (*model.Invoice, error) {
	return s.transition(ctx, actor, id, policy.ActionSend, model.InvoiceSent, nil)
}

// Cancel voids an invoice that has no payments applied or awaiting
// verification.
func (s *InvoiceService) Cancel(ctx context.Context, actor policy.Actor, id uint) (*model.Invoice, error) {
	return s.transition(ctx, actor, id, policy.ActionCancel, model.InvoiceCancelled, func(tx *gorm.DB, inv *model.Invoice) error {
		if inv.AmountPaid > 0 {
			return conflictf("invoice has %s in payments applied", money.Format(inv.AmountPaid, inv.Currency))
		}
		var pending int64
		if err := tx.Model(&model.Payment{}).
			Where("invoice_id = ? AND status = ?", inv.ID, model.PaymentPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("count pending payments: %w", err)
		}
		if pending > 0 {
			return conflictf("invoice has %d pending payment(s); verify or reject them first", pending)
		}
		return nil
	})
}

// Delete removes a draft invoice.
func (s *InvoiceService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionDelete); err != nil {
		return err
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := find[model.Invoice](s.scoped(forUpdate(tx), actor), "invoice", id)
		if err != nil {
			return err
		}
		if inv.Status != model.InvoiceDraft {
			return conflictf("invoice is %s; only draft invoices can be deleted", inv.Status)
		}
		var payments int64
		if err := tx.Model(&model.Payment{}).Where("invoice_id = ?", inv.ID).Count(&payments).Error; err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if payments > 0 {
			return conflictf("invoice has %d payment(s) recorded against it", payments)
		}
		return tx.Delete(inv).Error
	})
}

// MarkOverdue moves sent invoices past their due date to overdue.
func (s *InvoiceService) MarkOverdue(ctx context.Context) (int64, error) {
	result := s.conn(ctx).Model(&model.Invoice{}).
		Where("status = ? AND due_date < ?", model.InvoiceSent, s.today()).
		Update("status", model.InvoiceOverdue)
	if result.Error != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		prometheus.AddInvoiceTransitions(string(model.InvoiceOverdue), result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// ShareLinks builds WhatsApp, Gmail and Calendar links for sending the
// invoice to its tenant.
func (s *InvoiceService) ShareLinks(ctx context.Context, actor policy.Actor, id uint) (*ShareLinks, error) {
	if err := s.policy.Authorize(actor, policy.ResourceInvoice, policy.ActionShare); err != nil {
		return nil, err
	}
	inv, err := find[model.Invoice](s.scoped(s.conn(ctx), actor).Preload("Tenant"), "invoice", id)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvoiceCancelled {
		return nil, conflictf("invoice is cancelled")
	}

	var property model.Property
	if err := s.conn(ctx).Unscoped().First(&property, inv.PropertyID).Error; err != nil {
		return nil, dbError("property", err)
	}

	tenant := inv.Tenant
	if tenant == nil {
		tenant = &model.User{}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "Hello %s, invoice %s for %s", tenant.FullName(), inv.Number, property.Name)
	if inv.Status == model.InvoicePaid {
		fmt.Fprintf(&msg, " of %s has been paid in full. Thank you.", money.Format(inv.Total, inv.Currency))
	} else {
		fmt.Fprintf(&msg, " has a balance of %s due on %s.", money.Format(inv.Balance(), inv.Currency), inv.DueDate.Format(dateLayout))
	}
	if s.opts.PortalURL != "" {
		fmt.Fprintf(&msg, " %s/invoices/%d", strings.TrimRight(s.opts.PortalURL, "/"), inv.ID)
	}

	links := &ShareLinks{
		InvoiceID: inv.ID,
		Number:    inv.Number,
		Message:   msg.String(),
	}
	links.WhatsApp = deeplink.WhatsApp(tenant.Phone, s.opts.CountryCode, links.Message)
	links.Email = deeplink.GmailCompose(tenant.Email, "Invoice "+inv.Number, links.Message)
	links.Calendar = deeplink.GoogleCalendar(deeplink.Event{
		Title:    "Pay invoice " + inv.Number,
		Details:  links.Message,
		Location: addressOf(&property),
		Start:    inv.DueDate,
		AllDay:   true,
	})
	return links, nil
}

// applyPaymentTx adds amount to the invoice and marks it paid once
// covered. An invoice that no longer takes payments is returned unchanged
// with applied false. It runs inside the caller's transaction.
func (s *InvoiceService) applyPaymentTx(tx *gorm.DB, invoiceID uint, amount float64) (inv *model.Invoice, applied bool, err error) {
	inv, err = find[model.Invoice](forUpdate(tx), "invoice", invoiceID)
	if err != nil {
		return nil, false, err
	}
	if !inv.Status.Payable() {
		return inv, false, nil
	}

	inv.AmountPaid = money.Round(inv.AmountPaid + amount)
	updates := map[string]interface{}{"amount_paid": inv.AmountPaid}
	if inv.AmountPaid >= inv.Total {
		now := s.now()
		inv.Status = model.InvoicePaid
		inv.PaidAt = &now
		updates["status"] = model.InvoicePaid
		updates["paid_at"] = now
	}
	if err := tx.Model(inv).Updates(updates).Error; err != nil {
		return nil, false, fmt.Errorf("apply payment to invoice: %w", err)
	}
	return inv, true, nil
}
