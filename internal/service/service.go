// Package service holds the portal's domain rules. Every status change on
// leases, invoices, payments and maintenance requests happens here, inside
// a transaction, after the policy engine has approved the caller.
package service

import (
	"context"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/mobilemoney"
	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/jwtutil"
	"github.com/Go-ku/landlord-app-sub001/pkg/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2 Jan 2006"

// MobileMoney is the part of the provider client the payment service uses.
type MobileMoney interface {
	RequestToPay(ctx context.Context, req mobilemoney.PaymentRequest) (*mobilemoney.PaymentResponse, error)
}

// Options configures the services.
type Options struct {
	// Currency applies to records created without one.
	Currency string
	// CountryCode replaces a trunk "0" when building WhatsApp links.
	CountryCode string
	// PortalURL is linked from shared invoices and reminders.
	PortalURL   string
	JWT         *jwtutil.JWTUtil
	MobileMoney MobileMoney
	Now         func() time.Time
}

type base struct {
	db     *gorm.DB
	policy *policy.Engine
	opts   Options
}

func (b *base) now() time.Time {
	return b.opts.Now().UTC()
}

func (b *base) today() time.Time {
	return model.DateOnly(b.now())
}

func (b *base) conn(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

// Services bundles every domain service over one database.
type Services struct {
	Users       *UserService
	Tenants     *TenantService
	Properties  *PropertyService
	Leases      *LeaseService
	Invoices    *InvoiceService
	Payments    *PaymentService
	Maintenance *MaintenanceService
	Reports     *ReportService
	Policy      *policy.Engine
}

// New wires the services together.
func New(db *gorm.DB, engine *policy.Engine, opts Options) *Services {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = money.DefaultCurrency
	}
	if engine == nil {
		engine = policy.Default()
	}
	b := &base{db: db, policy: engine, opts: opts}

	leases := &LeaseService{base: b}
	invoices := &InvoiceService{base: b}
	return &Services{
		Users:       &UserService{base: b},
		Tenants:     &TenantService{base: b},
		Properties:  &PropertyService{base: b},
		Leases:      leases,
		Invoices:    invoices,
		Payments:    &PaymentService{base: b, leases: leases, invoices: invoices},
		Maintenance: &MaintenanceService{base: b},
		Reports:     &ReportService{base: b},
		Policy:      engine,
	}
}

// forUpdate row-locks the selected rows until the transaction ends. SQLite
// has no FOR UPDATE and serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func find[T any](db *gorm.DB, what string, id uint) (*T, error) {
	var v T
	if err := db.First(&v, id).Error; err != nil {
		return nil, dbError(what, err)
	}
	return &v, nil
}

func currencyOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}
