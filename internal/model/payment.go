package model

import (
	"time"

	"gorm.io/gorm"
)

// Payment is money received, or claimed to be received, against a lease.
type Payment struct {
	ID                uint           `json:"id" gorm:"primarykey"`
	Reference         string         `json:"reference" gorm:"type:varchar(64);uniqueIndex;not null"`
	LeaseID           uint           `json:"lease_id" gorm:"index;not null"`
	Lease             *Lease         `json:"lease,omitempty" gorm:"foreignKey:LeaseID"`
	InvoiceID         *uint          `json:"invoice_id,omitempty" gorm:"index"`
	Invoice           *Invoice       `json:"invoice,omitempty" gorm:"foreignKey:InvoiceID"`
	TenantID          uint           `json:"tenant_id" gorm:"index;not null"`
	PropertyID        uint           `json:"property_id" gorm:"index;not null"`
	Amount            float64        `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string         `json:"currency" gorm:"type:varchar(3);not null"`
	Method            PaymentMethod  `json:"method" gorm:"type:varchar(20);index;not null"`
	Status            PaymentStatus  `json:"status" gorm:"type:varchar(20);index;not null"`
	PaidAt            time.Time      `json:"paid_at" gorm:"index;not null"`
	RecordedBy        uint           `json:"recorded_by"`
	VerifiedAt        *time.Time     `json:"verified_at,omitempty"`
	VerifiedBy        *uint          `json:"verified_by,omitempty"`
	RejectionReason   string         `json:"rejection_reason,omitempty" gorm:"type:text"`
	ProviderReference string         `json:"provider_reference,omitempty" gorm:"type:varchar(100);index"`
	PhoneNumber       string         `json:"phone_number,omitempty" gorm:"type:varchar(30)"`
	Notes             string         `json:"notes" gorm:"type:text"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}
