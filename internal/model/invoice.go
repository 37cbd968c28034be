package model

import (
	"time"

	"gorm.io/gorm"
)

// Invoice is a bill raised against a lease.
type Invoice struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	Number     string         `json:"number" gorm:"type:varchar(40);uniqueIndex;not null"`
	LeaseID    uint           `json:"lease_id" gorm:"index;not null"`
	Lease      *Lease         `json:"lease,omitempty" gorm:"foreignKey:LeaseID"`
	TenantID   uint           `json:"tenant_id" gorm:"index;not null"`
	Tenant     *User          `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	PropertyID uint           `json:"property_id" gorm:"index;not null"`
	IssueDate  time.Time      `json:"issue_date" gorm:"not null"`
	DueDate    time.Time      `json:"due_date" gorm:"not null;index"`
	Status     InvoiceStatus  `json:"status" gorm:"type:varchar(20);index;not null"`
	Items      []InvoiceItem  `json:"items,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Subtotal   float64        `json:"subtotal" gorm:"type:numeric(12,2)"`
	TaxRate    float64        `json:"tax_rate" gorm:"type:numeric(5,2)"`
	TaxAmount  float64        `json:"tax_amount" gorm:"type:numeric(12,2)"`
	Total      float64        `json:"total" gorm:"type:numeric(12,2)"`
	AmountPaid float64        `json:"amount_paid" gorm:"type:numeric(12,2)"`
	Currency   string         `json:"currency" gorm:"type:varchar(3);not null"`
	Notes      string         `json:"notes" gorm:"type:text"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
	PaidAt     *time.Time     `json:"paid_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// InvoiceItem is one billable line.
type InvoiceItem struct {
	ID          uint    `json:"id" gorm:"primarykey"`
	InvoiceID   uint    `json:"invoice_id" gorm:"index;not null"`
	Description string  `json:"description" gorm:"type:varchar(255);not null"`
	Quantity    float64 `json:"quantity" gorm:"type:numeric(10,2);not null"`
	UnitPrice   float64 `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Amount      float64 `json:"amount" gorm:"type:numeric(12,2);not null"`
}

// Balance is what remains to be paid.
func (i Invoice) Balance() float64 {
	balance := i.Total - i.AmountPaid
	if balance < 0 {
		return 0
	}
	return balance
}
