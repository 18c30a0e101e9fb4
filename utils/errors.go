// utils/errors.go
package utils

import "errors"

var (
	ErrUserIDNotFound = errors.New("authentication required: user ID not found")
	ErrTenantNotFound = errors.New("authentication required: tenant not found")
)
