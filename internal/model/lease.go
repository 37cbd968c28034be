package model

import (
	"time"

	"gorm.io/gorm"
)

// Lease is the rental agreement linking a tenant, a property and its landlord.
type Lease struct {
	ID              uint           `json:"id" gorm:"primarykey"`
	PropertyID      uint           `json:"property_id" gorm:"index;not null"`
	Property        *Property      `json:"property,omitempty" gorm:"foreignKey:PropertyID"`
	TenantID        uint           `json:"tenant_id" gorm:"index;not null"`
	Tenant          *User          `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	LandlordID      uint           `json:"landlord_id" gorm:"index;not null"`
	Unit            string         `json:"unit" gorm:"type:varchar(50)"`
	StartDate       time.Time      `json:"start_date" gorm:"not null"`
	EndDate         time.Time      `json:"end_date" gorm:"not null;index"`
	MonthlyRent     float64        `json:"monthly_rent" gorm:"type:numeric(12,2);not null"`
	SecurityDeposit float64        `json:"security_deposit" gorm:"type:numeric(12,2)"`
	Currency        string         `json:"currency" gorm:"type:varchar(3);not null"`
	PaymentDueDay   int            `json:"payment_due_day" gorm:"not null"`
	Status          LeaseStatus    `json:"status" gorm:"type:varchar(20);index;not null"`
	ActivatedAt     *time.Time     `json:"activated_at,omitempty"`
	TerminatedAt    *time.Time     `json:"terminated_at,omitempty"`
	TerminationNote string         `json:"termination_note,omitempty" gorm:"type:text"`
	Notes           string         `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

// Overlaps reports whether the lease term intersects [start, end).
func (l Lease) Overlaps(start, end time.Time) bool {
	return l.StartDate.Before(end) && start.Before(l.EndDate)
}

// NextDueDate returns the first rent due date on or after from that falls
// inside the lease term, or the zero time when the lease has ended.
func (l Lease) NextDueDate(from time.Time) time.Time {
	day := l.PaymentDueDay
	if day < 1 {
		day = 1
	}
	if from.Before(l.StartDate) {
		from = l.StartDate
	}
	due := time.Date(from.Year(), from.Month(), day, 0, 0, 0, 0, time.UTC)
	if due.Before(DateOnly(from)) {
		due = due.AddDate(0, 1, 0)
	}
	if !due.Before(l.EndDate) {
		return time.Time{}
	}
	return due
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
