// Package testutil provides an in-memory database and record builders for
// tests across the service.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/pkg/config"
	"github.com/Go-ku/landlord-app-sub001/pkg/database"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Password is the plain-text password of every user created by User.
const Password = "correct-horse"

var (
	seq          atomic.Int64
	passwordHash = func() string {
		hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		return string(hash)
	}()
)

// NewDB opens a migrated in-memory SQLite database that is closed when the
// test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DBConfig{
		Driver:   "sqlite",
		Path:     ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// Date builds a UTC midnight date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// User inserts an active user with the given role.
func User(t testing.TB, db *gorm.DB, role model.Role) *model.User {
	t.Helper()
	n := seq.Add(1)
	u := &model.User{
		Email:     fmt.Sprintf("%s%d@example.com", role, n),
		Password:  passwordHash,
		FirstName: string(role),
		LastName:  fmt.Sprintf("No%d", n),
		Phone:     "0977000000",
		Role:      role,
		IsActive:  true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Property inserts a property owned by landlord.
func Property(t testing.TB, db *gorm.DB, landlord *model.User, manager *model.User) *model.Property {
	t.Helper()
	p := &model.Property{
		Name:         fmt.Sprintf("Property %d", seq.Add(1)),
		Address:      "12 Cairo Road",
		City:         "Lusaka",
		PropertyType: model.PropertyApartment,
		Units:        4,
		MonthlyRent:  1200,
		Currency:     "ZMW",
		LandlordID:   landlord.ID,
		IsActive:     true,
	}
	if manager != nil {
		p.ManagerID = &manager.ID
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Lease inserts a lease on property for tenant running from start for a year.
func Lease(t testing.TB, db *gorm.DB, p *model.Property, tenant *model.User, status model.LeaseStatus, start time.Time) *model.Lease {
	t.Helper()
	l := &model.Lease{
		PropertyID:    p.ID,
		TenantID:      tenant.ID,
		LandlordID:    p.LandlordID,
		Unit:          fmt.Sprintf("U%d", seq.Add(1)),
		StartDate:     start,
		EndDate:       start.AddDate(1, 0, 0),
		MonthlyRent:   1200,
		Currency:      "ZMW",
		PaymentDueDay: 5,
		Status:        status,
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

// Invoice inserts a single-item invoice for lease.
func Invoice(t testing.TB, db *gorm.DB, l *model.Lease, status model.InvoiceStatus, total float64, due time.Time) *model.Invoice {
	t.Helper()
	inv := &model.Invoice{
		Number:     fmt.Sprintf("INV-TEST-%06d", seq.Add(1)),
		LeaseID:    l.ID,
		TenantID:   l.TenantID,
		PropertyID: l.PropertyID,
		IssueDate:  due.AddDate(0, 0, -14),
		DueDate:    due,
		Status:     status,
		Items: []model.InvoiceItem{
			{Description: "Rent", Quantity: 1, UnitPrice: total, Amount: total},
		},
		Subtotal: total,
		Total:    total,
		Currency: "ZMW",
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

// Payment inserts a payment against lease.
func Payment(t testing.TB, db *gorm.DB, l *model.Lease, status model.PaymentStatus, method model.PaymentMethod, amount float64, paidAt time.Time) *model.Payment {
	t.Helper()
	p := &model.Payment{
		Reference:  fmt.Sprintf("TEST-%d", seq.Add(1)),
		LeaseID:    l.ID,
		TenantID:   l.TenantID,
		PropertyID: l.PropertyID,
		Amount:     amount,
		Currency:   "ZMW",
		Method:     method,
		Status:     status,
		PaidAt:     paidAt,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Maintenance inserts a maintenance request on p.
func Maintenance(t testing.TB, db *gorm.DB, p *model.Property, tenant *model.User, status model.MaintenanceStatus, priority model.MaintenancePriority) *model.MaintenanceRequest {
	t.Helper()
	m := &model.MaintenanceRequest{
		PropertyID: p.ID,
		Title:      "Leaking tap",
		Category:   model.CategoryPlumbing,
		Priority:   priority,
		Status:     status,
	}
	if tenant != nil {
		m.TenantID = &tenant.ID
		m.ReportedBy = tenant.ID
	} else {
		m.ReportedBy = p.LandlordID
	}
	require.NoError(t, db.Create(m).Error)
	return m
}
