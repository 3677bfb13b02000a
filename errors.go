package auth

import (
	"github.com/goliatone/go-errors"
)

// ErrInvalidCredentials is the generic authentication failure. It never
// reveals which adapter or which field rejected the attempt.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is returned when a validated identity no longer
// resolves to a user record.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryAuth).
	WithTextCode("IDENTITY_NOT_FOUND").
	WithCode(errors.CodeUnauthorized)

// ErrUserInactive is returned when a resolved user exists but is deactivated.
var ErrUserInactive = errors.New("user account is inactive", errors.CategoryAuth).
	WithTextCode("USER_INACTIVE").
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when an account is in its cool down
// window after repeated failures.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode("TOO_MANY_LOGIN_ATTEMPTS")

// ErrCorruptSessionState is returned when a masquerade frame is missing
// required fields. The unwind cannot proceed; the session must be reset.
var ErrCorruptSessionState = errors.New("session data corrupt, clear session data and try again", errors.CategoryConflict).
	WithTextCode("CORRUPT_SESSION_STATE").
	WithCode(errors.CodeConflict)

// ErrStatusCapabilityMissing marks a tracked entity that does not implement
// the status capability. Developer-facing; logged, never surfaced to users.
var ErrStatusCapabilityMissing = errors.New("model does not implement the status capability", errors.CategoryInternal).
	WithTextCode("STATUS_CAPABILITY_MISSING")

// ErrMismatchedHashAndPassword is the low level bcrypt comparison failure.
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password", errors.CategoryAuth).
	WithTextCode("PASSWORD_MISMATCH")

// ErrNoEmptyString rejects empty input where a secret is required.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput)

// IsAuthenticationError reports whether err belongs to the authentication
// failure family. Callers should surface these as a generic credentials
// warning.
func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Category == errors.CategoryAuth
	}
	return false
}

// IsSessionStateError reports whether err is a corrupt-session failure that
// requires the client to clear its session state.
func IsSessionStateError(err error) bool {
	return errors.Is(err, ErrCorruptSessionState)
}
