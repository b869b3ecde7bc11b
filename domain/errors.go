package domain

import "errors"

// Error taxonomy shared across the store, the federation core and the
// web layer. The web layer is the only place these map to HTTP codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyRequested  = errors.New("connection already requested")
	ErrMalformedActivity = errors.New("malformed activity")
	ErrInvalidInput      = errors.New("invalid input")
)
