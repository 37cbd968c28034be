package service

import (
	"context"
	"testing"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/internal/testutil"
	"github.com/Go-ku/landlord-app-sub001/pkg/jwtutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// now is the fixed clock every service test runs against.
var now = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

var ctx = context.Background()

type fixture struct {
	svc *Services
	db  *gorm.DB

	landlord      *model.User
	otherLandlord *model.User
	manager       *model.User
	tenant        *model.User
	otherTenant   *model.User
	admin         *model.User

	property      *model.Property
	otherProperty *model.Property
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	passwordCost = bcrypt.MinCost

	db := testutil.NewDB(t)
	o := Options{
		Currency:    "ZMW",
		CountryCode: "260",
		PortalURL:   "https://portal.example",
		JWT:         jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-key", ExpirationHours: 1}),
		Now:         func() time.Time { return now },
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := &fixture{svc: New(db, policy.Default(), o), db: db}
	f.landlord = testutil.User(t, db, model.RoleLandlord)
	f.otherLandlord = testutil.User(t, db, model.RoleLandlord)
	f.manager = testutil.User(t, db, model.RoleManager)
	f.tenant = testutil.User(t, db, model.RoleTenant)
	f.otherTenant = testutil.User(t, db, model.RoleTenant)
	f.admin = testutil.User(t, db, model.RoleAdmin)
	f.property = testutil.Property(t, db, f.landlord, f.manager)
	f.otherProperty = testutil.Property(t, db, f.otherLandlord, nil)
	return f
}

func as(u *model.User) policy.Actor {
	return policy.Actor{UserID: u.ID, Role: u.Role, Email: u.Email}
}

func date(y int, m time.Month, d int) time.Time {
	return testutil.Date(y, m, d)
}

func ptr[T any](v T) *T {
	return &v
}

func reload[T any](t *testing.T, db *gorm.DB, id uint) *T {
	t.Helper()
	var v T
	if err := db.First(&v, id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	return &v
}
