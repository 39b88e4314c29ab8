package authz

import (
	"errors"
	"fmt"

	"github.com/paperstack/paperstack/pkg/identity"
)

// ErrNotFound indicates an unknown document or user
var ErrNotFound = errors.New("not found")

// AuthenticationRequiredError indicates no identity is current where one is
// mandatory. Distinct from PermissionDeniedError: the caller is anonymous,
// not under-privileged.
type AuthenticationRequiredError struct {
	Reason string
}

func (e *AuthenticationRequiredError) Error() string {
	if e.Reason == "" {
		return "no user is currently authenticated"
	}
	return e.Reason
}

// NewAuthenticationRequired returns an error for a missing caller identity
func NewAuthenticationRequired(reason string) error {
	return &AuthenticationRequiredError{Reason: reason}
}

// IsAuthenticationRequired reports whether err is an authentication failure
func IsAuthenticationRequired(err error) bool {
	var target *AuthenticationRequiredError
	return errors.As(err, &target)
}

// PermissionDeniedError indicates the acting identity lacks a capability.
// It carries the acting user and the permission name for audit logging.
type PermissionDeniedError struct {
	User       identity.UserRef
	Permission string
	Message    string
}

func (e *PermissionDeniedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Permission != "" {
		return fmt.Sprintf("user %q does not have the required permission (%s)", e.User, e.Permission)
	}
	return fmt.Sprintf("permission denied for user %q", e.User)
}

// NewPermissionDenied returns an error for a failed permission check
func NewPermissionDenied(user identity.UserRef, permission string) error {
	return &PermissionDeniedError{User: user, Permission: permission}
}

// IsPermissionDenied reports whether err is a failed permission check
func IsPermissionDenied(err error) bool {
	var target *PermissionDeniedError
	return errors.As(err, &target)
}

// IntegrityError indicates a state that should be impossible, such as two
// stored API keys sharing a hash. It signals a defect, not a user error.
type IntegrityError struct {
	Message string
}

func (e *IntegrityError) Error() string {
	return e.Message
}

// NewIntegrityError returns an error for an impossible stored state
func NewIntegrityError(format string, args ...interface{}) error {
	return &IntegrityError{Message: fmt.Sprintf(format, args...)}
}

// IsIntegrityError reports whether err indicates corrupted state
func IsIntegrityError(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}
