package app

import "errors"

// Error kinds returned by application operations. Handlers map these to HTTP
// statuses with errors.Is; wrapped messages carry the human-readable detail.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
)
