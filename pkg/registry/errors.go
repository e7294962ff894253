package registry

import "errors"

// Common errors for registry operations.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrDuplicateTenant = errors.New("tenant already exists")

	ErrMemberNotFound  = errors.New("tenant member not found")
	ErrDuplicateMember = errors.New("user is already a member")

	ErrContextNotFound = errors.New("subscriber context not found")
)
