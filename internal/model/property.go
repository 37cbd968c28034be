package model

import (
	"time"

	"gorm.io/gorm"
)

// Property is a building or rentable space owned by a landlord.
type Property struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	Name         string         `json:"name" gorm:"type:varchar(255);not null"`
	Address      string         `json:"address" gorm:"type:text"`
	City         string         `json:"city" gorm:"type:varchar(100);index"`
	PropertyType PropertyType   `json:"property_type" gorm:"type:varchar(20);not null"`
	Units        int            `json:"units" gorm:"not null"`
	MonthlyRent  float64        `json:"monthly_rent" gorm:"type:numeric(12,2)"`
	Currency     string         `json:"currency" gorm:"type:varchar(3);not null"`
	Description  string         `json:"description" gorm:"type:text"`
	LandlordID   uint           `json:"landlord_id" gorm:"index;not null"`
	Landlord     *User          `json:"landlord,omitempty" gorm:"foreignKey:LandlordID"`
	ManagerID    *uint          `json:"manager_id,omitempty" gorm:"index"`
	Manager      *User          `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
	IsActive     bool           `json:"is_active" gorm:"default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
