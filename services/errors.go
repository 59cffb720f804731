package services

import "errors"

// Service errors
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
)
