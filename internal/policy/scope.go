package policy

import (
	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"gorm.io/gorm"
)

// Row scoping. Staff see rows belonging to the properties they own
// (landlords) or manage (managers); tenants see their own rows; admins see
// everything. Callers apply these with db.Scopes(...).

func none(db *gorm.DB) *gorm.DB {
	return db.Where("1 = 0")
}

func subquery(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true})
}

// staffProperties selects ids of properties the staff actor controls.
func (a Actor) staffProperties(db *gorm.DB) *gorm.DB {
	q := subquery(db).Model(&model.Property{}).Select("id")
	if a.Role == model.RoleManager {
		return q.Where("manager_id = ?", a.UserID)
	}
	return q.Where("landlord_id = ?", a.UserID)
}

// Properties restricts a query on the properties table.
func (a Actor) Properties(db *gorm.DB) *gorm.DB {
	switch a.Role {
	case model.RoleAdmin:
		return db
	case model.RoleLandlord:
		return db.Where("properties.landlord_id = ?", a.UserID)
	case model.RoleManager:
		return db.Where("properties.manager_id = ?", a.UserID)
	case model.RoleTenant:
		leased := subquery(db).Model(&model.Lease{}).Select("property_id").Where("tenant_id = ?", a.UserID)
		return db.Where("properties.id IN (?)", leased)
	}
	return none(db)
}

// PropertyRows returns a scope for tables carrying property_id and
// tenant_id columns: leases, invoices, payments, maintenance_requests.
func (a Actor) PropertyRows(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch a.Role {
		case model.RoleAdmin:
			return db
		case model.RoleLandlord, model.RoleManager:
			return db.Where(table+".property_id IN (?)", a.staffProperties(db))
		case model.RoleTenant:
			return db.Where(table+".tenant_id = ?", a.UserID)
		}
		return none(db)
	}
}

// Tenants restricts a query on the users table to tenant accounts the
// actor may see: staff see tenants leasing their properties and the
// accounts they created; a tenant sees only itself.
func (a Actor) Tenants(db *gorm.DB) *gorm.DB {
	db = db.Where("users.role = ?", model.RoleTenant)
	switch a.Role {
	case model.RoleAdmin:
		return db
	case model.RoleLandlord, model.RoleManager:
		leasing := subquery(db).Model(&model.Lease{}).Select("tenant_id").
			Where("property_id IN (?)", a.staffProperties(db))
		return db.Where(subquery(db).Where("users.id IN (?)", leasing).Or("users.created_by = ?", a.UserID))
	case model.RoleTenant:
		return db.Where("users.id = ?", a.UserID)
	}
	return none(db)
}

// OwnsProperty reports whether the staff actor controls p.
func (a Actor) OwnsProperty(p *model.Property) bool {
	switch a.Role {
	case model.RoleAdmin:
		return true
	case model.RoleLandlord:
		return p.LandlordID == a.UserID
	case model.RoleManager:
		return p.ManagerID != nil && *p.ManagerID == a.UserID
	}
	return false
}
