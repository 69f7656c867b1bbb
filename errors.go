package session

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeIdentityNotFound   = "identity_not_found"
	TextCodeBadCredentials     = "bad_credentials"
	TextCodeEmailDomain        = "email_domain_not_allowed"
	TextCodeEmailExists        = "email_already_exists"
	TextCodeSignOutFailed      = "sign_out_failed"
	TextCodeProfileNotFound    = "profile_not_found"
	TextCodeProfileFetch       = "profile_fetch_failed"
	TextCodeProfileUpdate      = "profile_update_failed"
	TextCodeInvalidCode        = "invalid_verification_code"
	TextCodeCodeExpired        = "verification_code_expired"
	TextCodeResendCooldown     = "resend_cooldown_active"
	TextCodeInvalidTransition  = "invalid_flow_transition"
	TextCodeFlowComplete       = "flow_already_complete"
	TextCodeTokenUnavailable   = "id_token_unavailable"
	TextCodeBackendUnavailable = "backend_unreachable"
)

// ErrIdentityNotFound is returned when no identity matches the identifier.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrBadCredentials is returned by sign-in when email/password do not match.
var ErrBadCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailDomainNotAllowed is returned when a signup email is outside the
// configured college domain.
var ErrEmailDomainNotAllowed = errors.New("email must belong to the college domain", errors.CategoryValidation).
	WithTextCode(TextCodeEmailDomain).
	WithCode(errors.CodeBadRequest)

// ErrEmailAlreadyExists is returned when an identity with the email exists.
var ErrEmailAlreadyExists = errors.New("email already registered", errors.CategoryValidation).
	WithTextCode(TextCodeEmailExists).
	WithCode(errors.CodeConflict)

// ErrSignOutFailed is returned when the identity provider rejects a
// sign-out; local session state is left untouched in that case.
var ErrSignOutFailed = errors.New("sign out failed", errors.CategoryInternal).
	WithTextCode(TextCodeSignOutFailed).
	WithCode(errors.CodeInternal)

// ErrProfileNotFound means the identity has no application profile yet. It
// is part of the expected onboarding flow, not an application error.
var ErrProfileNotFound = errors.New("profile not created yet", errors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(errors.CodeNotFound)

// ErrProfileFetch is returned when the profile store is unreachable or
// answers with an unexpected status.
var ErrProfileFetch = errors.New("failed to fetch profile", errors.CategoryInternal).
	WithTextCode(TextCodeProfileFetch).
	WithCode(errors.CodeInternal)

// ErrProfileUpdate is returned when a profile create/update/delete fails.
var ErrProfileUpdate = errors.New("failed to update profile", errors.CategoryInternal).
	WithTextCode(TextCodeProfileUpdate).
	WithCode(errors.CodeInternal)

// ErrInvalidCode is returned for a wrong one-time verification code.
var ErrInvalidCode = errors.New("invalid verification code", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidCode).
	WithCode(errors.CodeBadRequest)

// ErrCodeExpired is returned for a correct but expired code.
var ErrCodeExpired = errors.New("verification code expired", errors.CategoryValidation).
	WithTextCode(TextCodeCodeExpired).
	WithCode(errors.CodeBadRequest)

// ErrResendCooldown is returned when a resend is requested before the
// client-side cooldown has elapsed.
var ErrResendCooldown = errors.New("verification code was sent recently", errors.CategoryOperation).
	WithTextCode(TextCodeResendCooldown).
	WithCode(errors.CodeBadRequest)

// ErrInvalidTransition is returned when a flow operation is invoked from a
// state that does not allow it.
var ErrInvalidTransition = errors.New("invalid onboarding transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// ErrFlowComplete is returned when attempting to move past the terminal
// profile-complete state.
var ErrFlowComplete = errors.New("onboarding already complete", errors.CategoryConflict).
	WithTextCode(TextCodeFlowComplete).
	WithCode(errors.CodeConflict)

// ErrTokenUnavailable is returned when no ID token can be produced for an
// authenticated backend request.
var ErrTokenUnavailable = errors.New("no id token available", errors.CategoryAuth).
	WithTextCode(TextCodeTokenUnavailable).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("value cannot be an empty string", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the generic credential mismatch error.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsProfileNotFound reports whether err means "no profile yet". The adapter
// boundary tags the error, so call sites never inspect status codes or
// message substrings.
func IsProfileNotFound(err error) bool {
	return hasTextCode(err, TextCodeProfileNotFound)
}

// IsInvalidCode reports whether err is a wrong or expired one-time code.
func IsInvalidCode(err error) bool {
	return hasTextCode(err, TextCodeInvalidCode) || hasTextCode(err, TextCodeCodeExpired)
}

// IsResendCooldown reports whether err is the client-side resend throttle.
func IsResendCooldown(err error) bool {
	return hasTextCode(err, TextCodeResendCooldown)
}
