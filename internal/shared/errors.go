package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired occurs when a request carries no company scope.
	ErrTenantRequired = errors.New("company id required")
)
