package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/mobilemoney"
	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/deeplink"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/Go-ku/landlord-app-sub001/pkg/money"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentService records payments and moves them through verification.
// Verifying a payment activates a draft lease and settles the linked
// invoice in the same transaction.
type PaymentService struct {
	*base
	leases   *LeaseService
	invoices *InvoiceService
}

// PaymentInput records a payment. Reference is the idempotency key; a
// blank one is generated. Verify asks staff to record and verify at once.
type PaymentInput struct {
	LeaseID     uint
	InvoiceID   *uint
	Amount      float64
	Currency    string
	Method      model.PaymentMethod
	PaidAt      time.Time
	Reference   string
	PhoneNumber string
	Notes       string
	Verify      bool
}

// MobileMoneyInput starts a provider-collected payment.
type MobileMoneyInput struct {
	LeaseID     uint
	InvoiceID   *uint
	Amount      float64
	PhoneNumber string
	Reference   string
}

// PaymentFilter narrows List.
type PaymentFilter struct {
	Status    model.PaymentStatus
	Method    model.PaymentMethod
	LeaseID   uint
	InvoiceID uint
	From      time.Time
	To        time.Time
}

type verifyResult struct {
	leaseActivated bool
	invoice        *model.Invoice
	// detached holds the invoice the payment was unlinked from because
	// it had been paid or cancelled in the meantime.
	detached *model.Invoice
}

func (s *PaymentService) scoped(db *gorm.DB, actor policy.Actor) *gorm.DB {
	return db.Scopes(actor.PropertyRows("payments"))
}

// List returns the payments visible to the actor, most recent first.
func (s *PaymentService) List(ctx context.Context, actor policy.Actor, f PaymentFilter) ([]model.Payment, error) {
	if err := s.policy.Authorize(actor, policy.ResourcePayment, policy.ActionList); err != nil {
		return nil, err
	}

	query := s.scoped(s.conn(ctx), actor).Model(&model.Payment{})
	if f.Status != "" {
		query = query.Where("payments.status = ?", f.Status)
	}
	if f.Method != "" {
		query = query.Where("payments.method = ?", f.Method)
	}
	if f.LeaseID != 0 {
		query = query.Where("payments.lease_id = ?", f.LeaseID)
	}
	if f.InvoiceID != 0 {
		query = query.Where("payments.invoice_id = ?", f.InvoiceID)
	}
	if !f.From.IsZero() {
		query = query.Where("payments.paid_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("payments.paid_at < ?", f.To)
	}

	var payments []model.Payment
	if err := query.Order("payments.paid_at DESC, payments.id DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// Get returns one payment visible to the actor.
func (s *PaymentService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.Payment, error) {
	if err := s.policy.Authorize(actor, policy.ResourcePayment, policy.ActionRead); err != nil {
		return nil, err
	}
	return find[model.Payment](s.scoped(s.conn(ctx), actor).Preload("Lease").Preload("Invoice"), "payment", id)
}

func (s *PaymentService) byReference(db *gorm.DB, reference string) (*model.Payment, error) {
	var p model.Payment
	if err := db.Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, dbError("payment", err)
	}
	return &p, nil
}

// replay answers a repeated reference with the payment it already names,
// provided it describes the same payment and the actor can see it.
func (s *PaymentService) replay(ctx context.Context, actor policy.Actor, existing *model.Payment, in PaymentInput) (*model.Payment, error) {
	if existing.LeaseID != in.LeaseID || !money.Equal(existing.Amount, in.Amount) {
		return nil, conflictf("reference %s is already used by another payment", existing.Reference)
	}
	p, err := s.Get(ctx, actor, existing.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, conflictf("reference %s is already used by another payment", existing.Reference)
	}
	if err != nil {
		return nil, err
	}
	logger.FromStdContext(ctx).Info("Payment replayed",
		zap.String("reference", p.Reference),
		zap.Uint("payment_id", p.ID))
	prometheus.RecordPaymentOperation("replayed", string(p.Method))
	return p, nil
}

// Record stores a payment as pending, or verified when staff ask for it
// on a manually verifiable method. The bool reports whether a new payment
// was created; false means the reference was replayed.
func (s *PaymentService) Record(ctx context.Context, actor policy.Actor, in PaymentInput) (*model.Payment, bool, error) {
	if err := s.policy.Authorize(actor, policy.ResourcePayment, policy.ActionCreate); err != nil {
		return nil, false, err
	}
	in.Amount = money.Round(in.Amount)
	if in.Amount <= 0 {
		return nil, false, validationf("amount must be greater than 0")
	}
	if !in.Method.Valid() {
		return nil, false, validationf("unknown payment method %q", in.Method)
	}
	if in.Verify {
		if err := s.policy.Authorize(actor, policy.ResourcePayment, policy.ActionVerify); err != nil {
			return nil, false, err
		}
		if !in.Method.ManuallyVerifiable() {
			return nil, false, validationf("%s payments are verified by the provider, not on entry", in.Method.Label())
		}
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if paidAt.After(s.now().Add(24 * time.Hour)) {
		return nil, false, validationf("paid_at cannot be in the future")
	}

	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		reference = "PAY-" + uuid.NewString()
	}
	existing, err := s.byReference(s.conn(ctx), reference)
	if err == nil {
		p, err := s.replay(ctx, actor, existing, in)
		return p, false, err
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	var (
		payment *model.Payment
		result  verifyResult
	)
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := find[model.Lease](forUpdate(tx).Scopes(actor.PropertyRows("leases")), "lease", in.LeaseID)
		if err != nil {
			return err
		}
		if in.InvoiceID != nil {
			var inv model.Invoice
			err := tx.Where("id = ? AND lease_id = ?", *in.InvoiceID, lease.ID).First(&inv).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationf("invoice %d does not belong to lease %d", *in.InvoiceID, lease.ID)
			}
			if err != nil {
				return dbError("invoice", err)
			}
			if !inv.Status.Payable() {
				return conflictf("invoice %s is %s and cannot take payments", inv.Number, inv.Status)
			}
		}
		currency := strings.ToUpper(currencyOr(in.Currency, lease.Currency))
		if currency != lease.Currency {
			return validationf("currency %s does not match the lease currency %s", currency, lease.Currency)
		}

		payment = &model.Payment{
			Reference:   reference,
			LeaseID:     lease.ID,
			InvoiceID:   in.InvoiceID,
			TenantID:    lease.TenantID,
			PropertyID:  lease.PropertyID,
			Amount:      in.Amount,
			Currency:    currency,
			Method:      in.Method,
			Status:      model.PaymentPending,
			PaidAt:      paidAt.UTC(),
			RecordedBy:  actor.UserID,
			PhoneNumber: strings.TrimSpace(in.PhoneNumber),
			Notes:       in.Notes,
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		if in.Verify {
			verifier := actor.UserID
			result, err = s.verifyTx(tx, payment, lease, &verifier)
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with the same reference
			if existing, ferr := s.byReference(s.conn(ctx), reference); ferr == nil {
				p, err := s.replay(ctx, actor, existing, in)
				return p, false, err
			}
		}
		return nil, false, err
	}

	prometheus.RecordPaymentOperation("recorded", string(payment.Method))
	if in.Verify {
		s.recordVerified(ctx, payment, result)
	}
	p, err := s.Get(ctx, actor, payment.ID)
	return p, true, err
}

// verifyTx marks p verified, activates its lease if still a draft and
// applies the amount to the linked invoice. lease may be nil when the
// caller has not locked it yet.
func (s *PaymentService) verifyTx(tx *gorm.DB, p *model.Payment, lease *model.Lease, verifier *uint) (verifyResult, error) {
	var result verifyResult
	if lease == nil {
		var err error
		if lease, err = find[model.Lease](forUpdate(tx), "lease", p.LeaseID); err != nil {
			return result, err
		}
	}

	now := s.now()
	if err := tx.Model(p).Omit(clause.Associations).Updates(map[string]interface{}{
		"status":      model.PaymentVerified,
		"verified_at": now,
		"verified_by": verifier,
	}).Error; err != nil {
		return result, fmt.Errorf("verify payment: %w", err)
	}
	p.Status = model.PaymentVerified
	p.VerifiedAt = &now
	p.VerifiedBy = verifier

	if lease.Status == model.LeaseDraft {
		activated, err := s.leases.activateTx(tx, lease)
		if err != nil {
			return result, fmt.Errorf("activate lease %d: %w", lease.ID, err)
		}
		result.leaseActivated = activated
	}

	if p.InvoiceID != nil {
		inv, applied, err := s.invoices.applyPaymentTx(tx, *p.InvoiceID, p.Amount)
		if err != nil {
			return result, err
		}
		if !applied {
			// the money was received; keep it on the lease as credit
			if err := tx.Model(p).Omit(clause.Associations).Update("invoice_id", nil).Error; err != nil {
				return result, fmt.Errorf("detach payment from invoice: %w", err)
			}
			p.InvoiceID = nil
			p.Invoice = nil
			result.detached = inv
			return result, nil
		}
		result.invoice = inv
	}
	return result, nil
}

func (s *PaymentService) recordVerified(ctx context.Context, p *model.Payment, result verifyResult) {
	prometheus.RecordPaymentOperation("verified", string(p.Method))
	fields := []zap.Field{
		zap.Uint("payment_id", p.ID),
		zap.Uint("lease_id", p.LeaseID),
		zap.Float64("amount", p.Amount),
	}
	if result.leaseActivated {
		prometheus.RecordLeaseTransition(string(model.LeaseActive))
		fields = append(fields, zap.Bool("lease_activated", true))
	}
	if result.invoice != nil {
		fields = append(fields,
			zap.String("invoice", result.invoice.Number),
			zap.String("invoice_status", string(result.invoice.Status)))
		if result.invoice.Status == model.InvoicePaid {
			prometheus.RecordInvoiceTransition(string(model.InvoicePaid))
		}
	}
	log := logger.FromStdContext(ctx)
	if result.detached != nil {
		log.Warn("Payment kept as lease credit, invoice no longer takes payments",
			zap.Uint("payment_id", p.ID),
			zap.String("invoice", result.detached.Number),
			zap.String("invoice_status", string(result.detached.Status)))
	}
	log.Info("Payment verified", fields...)
}

// Verify confirms a pending payment. Verifying a verified payment returns
// it unchanged.
func (s *PaymentService) Verify(ctx context.Context, actor policy.Actor, id uint) (*model.Payment, error) {
	if err := s.policy.Authorize(actor, policy.ResourcePayment, policy.ActionVerify); err != nil {
		return nil, err
	}

	var (
		payment *model.Payment
		result  verifyResult
		changed bool
	)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = find[model.Payment](s.scoped(forUpdate(tx), actor), "payment", id)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentVerified {
			return nil
		}
		if !payment.Status.CanTransitionTo(model.PaymentVerified) {
			return transitionError("payment", payment.Status, model.PaymentVerified)
		}
		verifier := actor.UserID
		result, err = s.verifyTx(tx, payment, nil, &verifier)
		changed = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.recordVerified(ctx, payment, result)
	}
	return s.Get(ctx, actor, id)
}

func (s *PaymentService) rejectTx(tx *gorm.DB, p *model.Payment, reason string) error {
	if err := tx.Model(p).Omit(clause.Associations).Updates(map[string]interface{}{
		"status":           model.PaymentRejected,
		"rejection_reason": reason,
	}).Error; err != nil {
		return fmt.Errorf("reject payment: %w", err)
	}
	p.Status = model.PaymentRejected
	p.RejectionReason = reason
	return nil
}

// Reject declines a pending payment.
func (s *PaymentService) Reject(ctx context.Context, actor policy.Actor, id uint, reason string) (*model.Payment, error) {
	if err := s.policy.Authorize(actor, policy.ResourcePayment, policy.ActionReject); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("a reason is required to reject a payment")
	}

	var payment *model.Payment
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = find[model.Payment](s.scoped(forUpdate(tx), actor), "payment", id)
		if err != nil {
			return err
		}
		if !payment.Status.CanTransitionTo(model.PaymentRejected) {
			return transitionError("payment", payment.Status, model.PaymentRejected)
		}
		return s.rejectTx(tx, payment, reason)
	})
	if err != nil {
		return nil, err
	}
	prometheus.RecordPaymentOperation("rejected", string(payment.Method))
	return s.Get(ctx, actor, id)
}

// InitiateMobileMoney records a pending mobile-money payment and asks the
// provider to prompt the payer. The provider's callback settles it later.
// A replayed reference returns the existing payment without prompting again.
func (s *PaymentService) InitiateMobileMoney(ctx context.Context, actor policy.Actor, in MobileMoneyInput) (*model.Payment, bool, error) {
	if s.opts.MobileMoney == nil {
		return nil, false, fmt.Errorf("%w: mobile money is not configured", ErrProviderUnavailable)
	}
	phone := deeplink.NormalizePhone(in.PhoneNumber, s.opts.CountryCode)
	if phone == "" {
		return nil, false, validationf("phone_number is required")
	}

	payment, created, err := s.Record(ctx, actor, PaymentInput{
		LeaseID:     in.LeaseID,
		InvoiceID:   in.InvoiceID,
		Amount:      in.Amount,
		Method:      model.MethodMobileMoney,
		Reference:   in.Reference,
		PhoneNumber: phone,
	})
	if err != nil || !created {
		return payment, false, err
	}

	log := logger.FromStdContext(ctx)
	resp, err := s.opts.MobileMoney.RequestToPay(ctx, mobilemoney.PaymentRequest{
		Reference:   payment.Reference,
		Phone:       phone,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: "Rent payment " + payment.Reference,
	})
	if err != nil {
		log.Warn("Mobile money request failed",
			zap.String("reference", payment.Reference),
			zap.Error(err))
		rejectErr := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
			return s.rejectTx(tx, payment, "provider: "+err.Error())
		})
		if rejectErr != nil {
			log.Error("Failed to reject unsent mobile money payment",
				zap.String("reference", payment.Reference),
				zap.Error(rejectErr))
		}
		if errors.Is(err, mobilemoney.ErrRejected) {
			return nil, false, validationf("%v", err)
		}
		return nil, false, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := s.conn(ctx).Model(payment).Omit(clause.Associations).Update("provider_reference", resp.TransactionID).Error; err != nil {
		return nil, false, fmt.Errorf("store provider reference: %w", err)
	}
	log.Info("Mobile money payment initiated",
		zap.String("reference", payment.Reference),
		zap.String("transaction_id", resp.TransactionID))

	p, err := s.Get(ctx, actor, payment.ID)
	return p, true, err
}

// HandleCallback applies a provider callback to the payment it names.
// Repeated callbacks for a settled payment are no-ops.
func (s *PaymentService) HandleCallback(ctx context.Context, cb mobilemoney.Callback) (*model.Payment, error) {
	var (
		payment  *model.Payment
		result   verifyResult
		verified bool
		rejected bool
	)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.byReference(forUpdate(tx), cb.Reference)
		if err != nil {
			return err
		}
		if payment.Method != model.MethodMobileMoney {
			return validationf("payment %s is not a mobile money payment", payment.Reference)
		}
		if cb.ProviderReference != "" && payment.ProviderReference == "" {
			if err := tx.Model(payment).Omit(clause.Associations).Update("provider_reference", cb.ProviderReference).Error; err != nil {
				return fmt.Errorf("store provider reference: %w", err)
			}
		}

		switch {
		case cb.Successful():
			if payment.Status == model.PaymentVerified {
				return nil
			}
			if !payment.Status.CanTransitionTo(model.PaymentVerified) {
				return transitionError("payment", payment.Status, model.PaymentVerified)
			}
			result, err = s.verifyTx(tx, payment, nil, nil)
			verified = err == nil
			return err
		case cb.Failed():
			if payment.Status == model.PaymentRejected {
				return nil
			}
			if !payment.Status.CanTransitionTo(model.PaymentRejected) {
				return transitionError("payment", payment.Status, model.PaymentRejected)
			}
			reason := strings.TrimSpace(cb.Reason)
			if reason == "" {
				reason = "provider reported the payment as failed"
			}
			rejected = true
			return s.rejectTx(tx, payment, reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if verified {
		s.recordVerified(ctx, payment, result)
	}
	if rejected {
		prometheus.RecordPaymentOperation("rejected", string(payment.Method))
	}
	return find[model.Payment](s.conn(ctx), "payment", payment.ID)
}

// StatusChecker asks the provider for the current state of a payment.
type StatusChecker interface {
	Status(ctx context.Context, reference string) (*mobilemoney.StatusResponse, error)
}

// ReconcileMobileMoney polls the provider for mobile-money payments still
// pending after olderThan and applies what it reports, as if the callback
// had arrived. It returns how many payments were settled.
func (s *PaymentService) ReconcileMobileMoney(ctx context.Context, checker StatusChecker, olderThan time.Duration) (int, error) {
	var pending []model.Payment
	cutoff := s.now().Add(-olderThan)
	if err := s.conn(ctx).
		Where("method = ? AND status = ? AND paid_at < ?", model.MethodMobileMoney, model.PaymentPending, cutoff).
		Order("id").
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("list pending mobile money payments: %w", err)
	}

	log := logger.FromStdContext(ctx)
	settled := 0
	var errs []error
	for _, p := range pending {
		status, err := checker.Status(ctx, p.Reference)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Reference, err))
			continue
		}
		cb := mobilemoney.Callback{
			Reference:         p.Reference,
			ProviderReference: status.TransactionID,
			Status:            status.Status,
			Reason:            status.Reason,
		}
		if !cb.Successful() && !cb.Failed() {
			continue
		}
		updated, err := s.HandleCallback(ctx, cb)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Reference, err))
			continue
		}
		settled++
		log.Info("Mobile money payment reconciled",
			zap.String("reference", updated.Reference),
			zap.String("status", string(updated.Status)))
	}
	return settled, errors.Join(errs...)
}
