package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
	ErrSessionExpired = errors.New("session expired or invalid")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Credential errors are terminal: the holder must re-authenticate,
	// retrying the same credential cannot help.
	ErrInvalidRefreshToken = errors.New("invalid or missing refresh token")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStationCredentials  = errors.New("invalid station credentials or station is inactive")
	ErrProfileInactive     = errors.New("profile is deactivated")

	ErrInvalidTransition = errors.New("invalid piece status transition")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// IsCredentialError reports whether err means the credential itself was
// rejected, as opposed to a transient store fault.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrStationCredentials) ||
		errors.Is(err, ErrSessionExpired)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
