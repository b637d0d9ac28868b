package core

import (
	"errors"
	"fmt"
)

// Error kinds shared across layers. Wrap them with fmt.Errorf("...: %w", ErrX)
// and match with errors.Is; the HTTP layer maps each kind to a status code.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidRole         = errors.New("invalid role")
	ErrConfig              = errors.New("configuration fault")
	ErrStorage             = errors.New("storage fault")
	ErrNameSpaceExhausted  = errors.New("no free file name")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrDispatch            = errors.New("dispatch failed")
	ErrDispatchTimeout     = fmt.Errorf("%w: timeout", ErrDispatch)
	ErrDuplicate           = errors.New("already exists")
)

// Kind returns the machine-readable name of the most specific kind in err's chain.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedEncoding):
		return "invalid_input"
	case errors.Is(err, ErrDuplicate):
		return "conflict"
	case errors.Is(err, ErrNameSpaceExhausted):
		return "name_space_exhausted"
	case errors.Is(err, ErrDispatchTimeout):
		return "dispatch_timeout"
	case errors.Is(err, ErrDispatch):
		return "dispatch"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
