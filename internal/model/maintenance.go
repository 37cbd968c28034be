package model

import (
	"time"

	"gorm.io/gorm"
)

// MaintenanceRequest is an issue ticket filed against a property.
type MaintenanceRequest struct {
	ID              uint                `json:"id" gorm:"primarykey"`
	PropertyID      uint                `json:"property_id" gorm:"index;not null"`
	Property        *Property           `json:"property,omitempty" gorm:"foreignKey:PropertyID"`
	LeaseID         *uint               `json:"lease_id,omitempty" gorm:"index"`
	TenantID        *uint               `json:"tenant_id,omitempty" gorm:"index"`
	Tenant          *User               `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	ReportedBy      uint                `json:"reported_by" gorm:"not null"`
	Title           string              `json:"title" gorm:"type:varchar(255);not null"`
	Description     string              `json:"description" gorm:"type:text"`
	DescriptionHTML string              `json:"description_html,omitempty" gorm:"-"`
	Category        MaintenanceCategory `json:"category" gorm:"type:varchar(20);not null"`
	Priority        MaintenancePriority `json:"priority" gorm:"type:varchar(20);index;not null"`
	Status          MaintenanceStatus   `json:"status" gorm:"type:varchar(20);index;not null"`
	AssignedTo      string              `json:"assigned_to" gorm:"type:varchar(255)"`
	ResolutionNotes string              `json:"resolution_notes" gorm:"type:text"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time          `json:"closed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	DeletedAt       gorm.DeletedAt      `json:"-" gorm:"index"`
}
