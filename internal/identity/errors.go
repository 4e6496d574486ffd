package identity

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("resource conflict")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidState      = errors.New("invalid state")
)
