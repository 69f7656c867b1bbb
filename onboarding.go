package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// FlowState is a step in the onboarding flow
type FlowState string

const (
	// StateSignup is the initial state, before an identity exists
	StateSignup FlowState = "signup"
	// StateAwaitingCode means an identity exists and a one-time code is pending
	StateAwaitingCode FlowState = "awaiting_code"
	// StateCodeVerified means the email is verified and profile setup is pending
	StateCodeVerified FlowState = "code_verified"
	// StateProfileComplete is the terminal state
	StateProfileComplete FlowState = "profile_complete"
)

// FlowTransition describes a completed state change, passed to hooks.
type FlowTransition struct {
	Email string
	From  FlowState
	To    FlowState
}

// FlowHook runs after a successful transition.
type FlowHook func(ctx context.Context, t FlowTransition)

// FlowOption customizes flow behavior.
type FlowOption func(*Flow)

// WithFlowLogger overrides the fallback logger.
func WithFlowLogger(logger Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowClock injects a custom clock (useful for tests).
func WithFlowClock(clock func() time.Time) FlowOption {
	return func(f *Flow) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithFlowActivitySink sets the sink used to publish flow events.
func WithFlowActivitySink(sink ActivitySink) FlowOption {
	return func(f *Flow) {
		f.activitySink = normalizeActivitySink(sink)
	}
}

// WithResendCooldown overrides the client-side resend throttle window.
func WithResendCooldown(d time.Duration) FlowOption {
	return func(f *Flow) {
		if d >= 0 {
			f.cooldown = d
		}
	}
}

// WithCollegeDomain overrides the accepted signup email domain.
func WithCollegeDomain(domain string) FlowOption {
	return func(f *Flow) {
		if domain != "" {
			f.domain = domain
		}
	}
}

// WithFlowConfig applies domain and cooldown settings from a Config.
func WithFlowConfig(cfg Config) FlowOption {
	return func(f *Flow) {
		if cfg == nil {
			return
		}
		if d := cfg.GetCollegeDomain(); d != "" {
			f.domain = d
		}
		if s := cfg.GetResendCooldownSeconds(); s >= 0 {
			f.cooldown = time.Duration(s) * time.Second
		}
		if n := cfg.GetPasswordMinLength(); n > 0 {
			f.passwordMin = n
		}
	}
}

// WithFlowTransitionHook adds a hook executed after each transition.
func WithFlowTransitionHook(h FlowHook) FlowOption {
	return func(f *Flow) {
		if h != nil {
			f.hooks = append(f.hooks, h)
		}
	}
}

// Flow drives a single user's onboarding:
//
//	signup -> awaiting_code -> code_verified -> profile_complete
//
// Every backend failure keeps the machine in its current state; there is no
// automatic retry, the user resubmits. Abort is the sign-out escape hatch
// available from every state.
type Flow struct {
	provider     IdentityProvider
	verifier     CodeVerifier
	store        ProfileStore
	session      *Manager
	transitions  map[FlowState]map[FlowState]struct{}
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
	hooks        []FlowHook
	cooldown     time.Duration
	domain       string
	passwordMin  int

	mu         sync.Mutex
	state      FlowState
	email      string
	codeSent   bool
	lastSentAt *time.Time
}

// NewFlow returns an onboarding flow in the signup state.
func NewFlow(provider IdentityProvider, verifier CodeVerifier, store ProfileStore, session *Manager, opts ...FlowOption) *Flow {
	f := &Flow{
		provider: provider,
		verifier: verifier,
		store:    store,
		session:  session,
		transitions: map[FlowState]map[FlowState]struct{}{
			StateSignup: {
				StateAwaitingCode: {},
			},
			StateAwaitingCode: {
				StateCodeVerified: {},
			},
			StateCodeVerified: {
				StateProfileComplete: {},
			},
		},
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		cooldown:     DefaultResendCooldown,
		domain:       DefaultCollegeDomain,
		passwordMin:  PasswordMinLength,
		state:        StateSignup,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f
}

// State returns the current flow state.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Email returns the email the flow was entered with.
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// CodeSent reports whether the last code dispatch was confirmed.
func (f *Flow) CodeSent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeSent
}

// ResendAvailableIn returns how long until a resend is allowed. Zero means
// immediately eligible, which is the case when the flow was resumed from a
// login without a confirmed dispatch.
func (f *Flow) ResendAvailableIn() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resendRemaining()
}

func (f *Flow) resendRemaining() time.Duration {
	if f.lastSentAt == nil {
		return 0
	}
	elapsed := f.now().Sub(*f.lastSentAt)
	if elapsed >= f.cooldown {
		return 0
	}
	return f.cooldown - elapsed
}

// SubmitSignup creates the identity and requests a one-time code. The flow
// always advances to awaiting_code once the identity exists; CodeSent stays
// false when the dispatch could not be confirmed, which makes the resend
// immediately eligible.
func (f *Flow) SubmitSignup(ctx context.Context, payload SignupPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardTransition(StateSignup, StateAwaitingCode); err != nil {
		return err
	}

	if err := payload.Validate(f.domain, f.passwordMin); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid signup payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if _, err := f.provider.SignUp(ctx, payload.Email, payload.Password); err != nil {
		f.logger.Error("signup failed for %s: %v", payload.Email, err)
		return err
	}

	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSignUp,
		Email:     payload.Email,
	})

	sent := true
	if err := f.verifier.SendVerificationCode(ctx, payload.Email); err != nil {
		// identity already exists; stranding the user in signup would only
		// force a duplicate registration, so advance without the cooldown
		f.logger.Warn("verification code dispatch unconfirmed for %s: %v", payload.Email, err)
		sent = false
	}

	f.email = payload.Email
	f.enterAwaitingCode(ctx, StateSignup, sent)
	return nil
}

// ResumeAwaitingCode enters the awaiting-code state for an existing,
// unverified identity, typically after a login attempt. The parameters are
// explicit: no ambient navigation payload is consulted.
func (f *Flow) ResumeAwaitingCode(ctx context.Context, email string, codeSent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardTransition(f.state, StateAwaitingCode); err != nil {
		return err
	}

	f.email = email
	f.enterAwaitingCode(ctx, f.state, codeSent)
	return nil
}

func (f *Flow) enterAwaitingCode(ctx context.Context, from FlowState, codeSent bool) {
	f.codeSent = codeSent
	if codeSent {
		n := f.now()
		f.lastSentAt = &n
		f.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventCodeSent,
			Email:     f.email,
		})
	} else {
		f.lastSentAt = nil
	}
	f.transitionTo(ctx, from, StateAwaitingCode)
}

// SubmitCode verifies a one-time code. A wrong code keeps the flow in
// awaiting_code; the caller clears the entered digits and may retry.
func (f *Flow) SubmitCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardTransition(StateAwaitingCode, StateCodeVerified); err != nil {
		return err
	}

	if err := (CodePayload{Code: code}).Validate(); err != nil {
		return ErrInvalidCode.WithMetadata(map[string]any{
			"reason": err.Error(),
		})
	}

	if err := f.verifier.VerifyCode(ctx, f.email, code); err != nil {
		f.logger.Info("code rejected for %s: %v", f.email, err)
		return err
	}

	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventCodeVerified,
		Email:     f.email,
	})
	f.transitionTo(ctx, StateAwaitingCode, StateCodeVerified)
	return nil
}

// ResendCode requests a fresh code. The cooldown is a UX throttle only; the
// backend enforces real rate limits.
func (f *Flow) ResendCode(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAwaitingCode {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"state":     f.state,
			"operation": "resend_code",
		})
	}

	if remaining := f.resendRemaining(); remaining > 0 {
		return ErrResendCooldown.WithMetadata(map[string]any{
			"retry_in_seconds": int(remaining.Seconds()),
		})
	}

	if err := f.verifier.SendVerificationCode(ctx, f.email); err != nil {
		return err
	}

	n := f.now()
	f.lastSentAt = &n
	f.codeSent = true
	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventCodeSent,
		Email:     f.email,
	})
	return nil
}

// SubmitProfile creates the application profile and refreshes the session
// snapshot. The flow reaches profile_complete only after the refresh
// succeeds; until then guards keep redirecting to onboarding.
func (f *Flow) SubmitProfile(ctx context.Context, payload ProfileSetupPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardTransition(StateCodeVerified, StateProfileComplete); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if _, err := f.store.CreateProfile(ctx, payload); err != nil {
		f.logger.Error("profile creation failed for %s: %v", f.email, err)
		return err
	}

	if f.session != nil {
		if _, err := f.session.RefreshProfile(ctx); err != nil {
			f.logger.Error("profile refresh after creation failed for %s: %v", f.email, err)
			return err
		}
	}

	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventProfileCreated,
		Email:     f.email,
	})
	f.transitionTo(ctx, StateCodeVerified, StateProfileComplete)
	return nil
}

// Abort signs out and resets the flow to signup. On sign-out failure the
// flow state is left unchanged; the caller must not navigate away.
func (f *Flow) Abort(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session != nil {
		if err := f.session.SignOut(ctx); err != nil {
			return err
		}
	} else if err := f.provider.SignOut(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "sign out failed").
			WithTextCode(TextCodeSignOutFailed).
			WithCode(goerrors.CodeInternal)
	}

	from := f.state
	f.state = StateSignup
	f.email = ""
	f.codeSent = false
	f.lastSentAt = nil
	f.runHooks(ctx, FlowTransition{From: from, To: StateSignup})
	return nil
}

// guardTransition validates that the operation is legal from the current
// state; operations name both their expected source and their target so the
// error metadata can tell a reviewer exactly what was attempted.
func (f *Flow) guardTransition(from, to FlowState) error {
	if f.state == StateProfileComplete {
		return ErrFlowComplete.WithMetadata(map[string]any{
			"to": to,
		})
	}

	if f.state != from {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"state":    f.state,
			"expected": from,
			"to":       to,
		})
	}

	if allowed, ok := f.transitions[from]; ok {
		if _, exists := allowed[to]; exists {
			return nil
		}
	}

	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": from,
		"to":   to,
	})
}

func (f *Flow) transitionTo(ctx context.Context, from, to FlowState) {
	f.state = to
	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventFlowTransition,
		Email:     f.email,
		FromState: from,
		ToState:   to,
	})
	f.runHooks(ctx, FlowTransition{Email: f.email, From: from, To: to})
}

func (f *Flow) runHooks(ctx context.Context, t FlowTransition) {
	for _, hook := range f.hooks {
		if hook != nil {
			hook(ctx, t)
		}
	}
}

func (f *Flow) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = f.now()
	}
	sink := normalizeActivitySink(f.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		f.logger.Warn("flow activity sink error: %v", err)
	}
}
