package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated user as reported by the
// identity provider. It is distinct from the application Profile.
type Identity interface {
	ID() string
	Email() string
	EmailVerified() bool
}

// IdentityProvider wraps the external authentication service. Change-of-user
// notifications are delivered in emission order; a nil identity means the
// user signed out.
type IdentityProvider interface {
	OnUserChanged(fn func(Identity)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	CurrentIDToken(ctx context.Context) (string, error)
}

// TokenSource issues a fresh bearer token for authenticated backend calls.
type TokenSource interface {
	CurrentIDToken(ctx context.Context) (string, error)
}

// ProfileStore is the application profile backend. FetchMine returns
// ErrProfileNotFound when the identity exists but no profile has been
// created yet; callers treat that as "onboarding incomplete", not a failure.
type ProfileStore interface {
	FetchMine(ctx context.Context) (*Profile, error)
	CreateProfile(ctx context.Context, payload ProfileSetupPayload) (*Profile, error)
	UpdateProfile(ctx context.Context, payload UpdateProfilePayload) (*Profile, error)
	DeleteProfile(ctx context.Context) error
}

// CodeVerifier is the verification backend for one-time email codes. The
// backend is the authority on code expiry and rate limiting; client-side
// cooldowns are a UX throttle only.
type CodeVerifier interface {
	SendVerificationCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// ResponseCache is any per-user response cache that must be dropped when the
// identity changes, so a new user never sees the prior user's cached data.
type ResponseCache interface {
	Clear()
}

// EmailSender dispatches transactional mail for the command handlers.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds session options
type Config interface {
	GetCollegeDomain() string
	GetPasswordMinLength() int
	GetResendCooldownSeconds() int
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
