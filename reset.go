package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ResetState is a step in the password reset flow
type ResetState string

const (
	// ResetStateRequest collects the account email
	ResetStateRequest ResetState = "request"
	// ResetStateAwaitingCode means a reset code is pending
	ResetStateAwaitingCode ResetState = "reset_awaiting_code"
	// ResetStateCodeVerified means the code matched and a new password is pending
	ResetStateCodeVerified ResetState = "reset_code_verified"
	// ResetStateDone is the terminal state
	ResetStateDone ResetState = "reset_done"
)

// ResetOption customizes reset flow behavior.
type ResetOption func(*ResetFlow)

// WithResetLogger overrides the fallback logger.
func WithResetLogger(logger Logger) ResetOption {
	return func(r *ResetFlow) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResetClock injects a custom clock.
func WithResetClock(clock func() time.Time) ResetOption {
	return func(r *ResetFlow) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithResetActivitySink sets the sink used to publish reset events.
func WithResetActivitySink(sink ActivitySink) ResetOption {
	return func(r *ResetFlow) {
		r.activitySink = normalizeActivitySink(sink)
	}
}

// WithResetResendCooldown overrides the client-side resend throttle window.
func WithResetResendCooldown(d time.Duration) ResetOption {
	return func(r *ResetFlow) {
		if d >= 0 {
			r.cooldown = d
		}
	}
}

// ResetFlow drives a forgotten-password recovery:
//
//	request -> reset_awaiting_code -> reset_code_verified -> reset_done
//
// It mirrors the onboarding flow's semantics: failures keep the current
// state, codes are single use, and the resend throttle is client-side UX
// rather than a security boundary.
type ResetFlow struct {
	verifier     CodeVerifier
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
	cooldown     time.Duration

	mu         sync.Mutex
	state      ResetState
	email      string
	code       string
	lastSentAt *time.Time
}

// NewResetFlow returns a reset flow in the request state.
func NewResetFlow(verifier CodeVerifier, opts ...ResetOption) *ResetFlow {
	r := &ResetFlow{
		verifier:     verifier,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		cooldown:     DefaultResendCooldown,
		state:        ResetStateRequest,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// State returns the current reset state.
func (r *ResetFlow) State() ResetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Email returns the email under recovery.
func (r *ResetFlow) Email() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.email
}

// ResendAvailableIn returns how long until another code may be requested.
func (r *ResetFlow) ResendAvailableIn() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resendRemaining()
}

func (r *ResetFlow) resendRemaining() time.Duration {
	if r.lastSentAt == nil {
		return 0
	}
	elapsed := r.now().Sub(*r.lastSentAt)
	if elapsed >= r.cooldown {
		return 0
	}
	return r.cooldown - elapsed
}

// RequestCode asks the backend to send a reset code. The backend responds
// identically whether or not the account exists, so no account enumeration
// leaks through this call.
func (r *ResetFlow) RequestCode(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != ResetStateRequest && r.state != ResetStateAwaitingCode {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"state":     r.state,
			"operation": "request_reset_code",
		})
	}

	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email").
			WithCode(goerrors.CodeBadRequest)
	}

	if remaining := r.resendRemaining(); remaining > 0 && r.email == email {
		return ErrResendCooldown.WithMetadata(map[string]any{
			"retry_in_seconds": int(remaining.Seconds()),
		})
	}

	if err := r.verifier.SendPasswordResetCode(ctx, email); err != nil {
		r.logger.Error("reset code dispatch failed for %s: %v", email, err)
		return err
	}

	n := r.now()
	r.email = email
	r.lastSentAt = &n
	r.state = ResetStateAwaitingCode
	r.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventCodeSent,
		Email:     email,
		Metadata:  map[string]any{"purpose": PurposePasswordReset},
	})
	return nil
}

// SubmitCode checks the reset code without consuming it; the code is
// finally consumed by SubmitNewPassword so an abandoned form does not burn
// a valid code.
func (r *ResetFlow) SubmitCode(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != ResetStateAwaitingCode {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"state":     r.state,
			"operation": "submit_reset_code",
		})
	}

	if err := (CodePayload{Code: code}).Validate(); err != nil {
		return ErrInvalidCode.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	if err := r.verifier.VerifyResetCode(ctx, r.email, code); err != nil {
		r.logger.Info("reset code rejected for %s: %v", r.email, err)
		return err
	}

	r.code = code
	r.state = ResetStateCodeVerified
	r.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventCodeVerified,
		Email:     r.email,
		Metadata:  map[string]any{"purpose": PurposePasswordReset},
	})
	return nil
}

// SubmitNewPassword sets the new password using the verified code. After
// success the flow is done and the user signs in with the new credentials.
func (r *ResetFlow) SubmitNewPassword(ctx context.Context, newPassword, confirmPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != ResetStateCodeVerified {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"state":     r.state,
			"operation": "submit_new_password",
		})
	}

	payload := ResetPasswordPayload{
		Email:           r.email,
		Code:            r.code,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	}
	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := r.verifier.ResetPassword(ctx, r.email, r.code, newPassword); err != nil {
		r.logger.Error("password reset failed for %s: %v", r.email, err)
		return err
	}

	r.code = ""
	r.state = ResetStateDone
	r.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Email:     r.email,
	})
	return nil
}

func (r *ResetFlow) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	sink := normalizeActivitySink(r.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		r.logger.Warn("reset activity sink error: %v", err)
	}
}
