package engine

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateComplaint = errors.New("location already has an open complaint")
	ErrInvalidOTP         = errors.New("otp does not match")
	ErrPersistence        = errors.New("persistence failure")
)

// ErrorCode maps an engine error to the error_code used in logs and API responses.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidTransition):
		return "INVALID_STATE"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrDuplicateComplaint):
		return "CONFLICT"
	case errors.Is(err, ErrInvalidOTP):
		return "INVALID_OTP"
	default:
		return "INTERNAL_ERROR"
	}
}
