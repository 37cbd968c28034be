package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// passwordCost is lowered by tests.
var passwordCost = bcrypt.DefaultCost

// UserService handles accounts, sign-in and the caller's own profile.
type UserService struct {
	*base
}

// RegisterInput is a self-service sign-up.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      model.Role
}

// LoginResult carries the issued token.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// ProfileInput changes the caller's own account. Nil fields are left alone.
type ProfileInput struct {
	FirstName       *string
	LastName        *string
	Phone           *string
	Password        *string
	CurrentPassword string
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", validationf("password must have at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func createAccount(db *gorm.DB, u *model.User) error {
	var count int64
	if err := db.Model(&model.User{}).Unscoped().Where("email = ?", u.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return conflictf("email %s is already registered", u.Email)
	}
	if err := db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return conflictf("email %s is already registered", u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Register creates an account. Admin accounts cannot be self-registered;
// the role defaults to tenant.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	role := in.Role
	if role == "" {
		role = model.RoleTenant
	}
	if !role.Valid() || role == model.RoleAdmin {
		return nil, validationf("role %q cannot be registered", role)
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, validationf("email is required")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:     email,
		Password:  hash,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      role,
		IsActive:  true,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := createAccount(s.conn(ctx), user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and issues a token.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	prometheus.RecordAuthAttempt()

	var user model.User
	err := s.conn(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prometheus.RecordAuthError("user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		prometheus.RecordAuthError("inactive")
		return nil, ErrInactive
	}
	if s.opts.JWT == nil {
		return nil, errors.New("token issuer is not configured")
	}

	token, expiresAt, err := s.opts.JWT.GenerateToken(user.Email, user.ID, string(user.Role))
	if err != nil {
		prometheus.RecordAuthError("token_generation_failed")
		return nil, fmt.Errorf("generate token: %w", err)
	}
	prometheus.RecordAuthSuccess()
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: &user}, nil
}

// Profile returns the caller's account.
func (s *UserService) Profile(ctx context.Context, actor policy.Actor) (*model.User, error) {
	return find[model.User](s.conn(ctx), "user", actor.UserID)
}

// UpdateProfile edits the caller's account. Changing the password requires
// the current one.
func (s *UserService) UpdateProfile(ctx context.Context, actor policy.Actor, in ProfileInput) (*model.User, error) {
	user, err := s.Profile(ctx, actor)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Password != nil {
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)) != nil {
			return nil, validationf("current password is incorrect")
		}
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hash
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.conn(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.Profile(ctx, actor)
}

// Permissions lists what the caller's role may do.
func (s *UserService) Permissions(actor policy.Actor) map[policy.Resource][]policy.Action {
	return s.policy.Permissions(actor.Role)
}
