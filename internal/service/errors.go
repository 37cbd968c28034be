package service

import (
	"errors"
	"fmt"

	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInactive            = errors.New("account is inactive")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrForbidden is the policy's denial, re-exported so callers need a
	// single errors.Is target per outcome.
	ErrForbidden = policy.ErrForbidden
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func transitionError(what string, from, to interface{}) error {
	return fmt.Errorf("%w: %s cannot move from %v to %v", ErrInvalidTransition, what, from, to)
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// dbError maps a load failure onto the service's error set.
func dbError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
