package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrMissingPlugin          = errors.New("plugin not installed")
	ErrInvalidBundle          = errors.New("invalid export bundle")
)
