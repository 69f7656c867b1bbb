package session_test

import (
	"context"
	"sync"
	"time"

	session "github.com/campex/go-session"
)

type fakeIdentity struct {
	id            string
	email         string
	emailVerified bool
}

func (f fakeIdentity) ID() string          { return f.id }
func (f fakeIdentity) Email() string       { return f.email }
func (f fakeIdentity) EmailVerified() bool { return f.emailVerified }

// fakeProvider lets tests drive user-changed notifications by hand.
type fakeProvider struct {
	mu        sync.Mutex
	current   session.Identity
	listeners []func(session.Identity)

	signInFn  func(ctx context.Context, email, password string) (session.Identity, error)
	signUpFn  func(ctx context.Context, email, password string) (session.Identity, error)
	signOutFn func(ctx context.Context) error
}

func (p *fakeProvider) OnUserChanged(fn func(session.Identity)) func() {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	current := p.current
	p.mu.Unlock()

	fn(current)
	return func() {}
}

func (p *fakeProvider) emit(ident session.Identity) {
	p.mu.Lock()
	p.current = ident
	fns := append([]func(session.Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (session.Identity, error) {
	if p.signInFn != nil {
		return p.signInFn(ctx, email, password)
	}
	ident := fakeIdentity{id: "uid-" + email, email: email}
	p.emit(ident)
	return ident, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (session.Identity, error) {
	if p.signUpFn != nil {
		return p.signUpFn(ctx, email, password)
	}
	ident := fakeIdentity{id: "uid-" + email, email: email}
	p.emit(ident)
	return ident, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	if p.signOutFn != nil {
		return p.signOutFn(ctx)
	}
	p.emit(nil)
	return nil
}

func (p *fakeProvider) CurrentIDToken(ctx context.Context) (string, error) {
	return "token", nil
}

// fakeStore serves profile operations from function fields.
type fakeStore struct {
	fetchFn  func(ctx context.Context) (*session.Profile, error)
	createFn func(ctx context.Context, payload session.ProfileSetupPayload) (*session.Profile, error)
	updateFn func(ctx context.Context, payload session.UpdateProfilePayload) (*session.Profile, error)
	deleteFn func(ctx context.Context) error
}

func (s *fakeStore) FetchMine(ctx context.Context) (*session.Profile, error) {
	if s.fetchFn != nil {
		return s.fetchFn(ctx)
	}
	return nil, session.ErrProfileNotFound
}

func (s *fakeStore) CreateProfile(ctx context.Context, payload session.ProfileSetupPayload) (*session.Profile, error) {
	if s.createFn != nil {
		return s.createFn(ctx, payload)
	}
	return &session.Profile{FullName: payload.FullName, AcademicYear: payload.AcademicYear}, nil
}

func (s *fakeStore) UpdateProfile(ctx context.Context, payload session.UpdateProfilePayload) (*session.Profile, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, payload)
	}
	return &session.Profile{}, nil
}

func (s *fakeStore) DeleteProfile(ctx context.Context) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx)
	}
	return nil
}

// fakeVerifier records calls and serves canned answers.
type fakeVerifier struct {
	mu        sync.Mutex
	sent      []string
	resets    []string
	sendErr   error
	verifyErr error
	resetErr  error
}

func (v *fakeVerifier) SendVerificationCode(ctx context.Context, email string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sendErr != nil {
		return v.sendErr
	}
	v.sent = append(v.sent, email)
	return nil
}

func (v *fakeVerifier) VerifyCode(ctx context.Context, email, code string) error {
	return v.verifyErr
}

func (v *fakeVerifier) SendPasswordResetCode(ctx context.Context, email string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sendErr != nil {
		return v.sendErr
	}
	v.resets = append(v.resets, email)
	return nil
}

func (v *fakeVerifier) VerifyResetCode(ctx context.Context, email, code string) error {
	return v.verifyErr
}

func (v *fakeVerifier) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return v.resetErr
}

func (v *fakeVerifier) sentCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.sent)
}

// fakeCache counts clears.
type fakeCache struct {
	mu     sync.Mutex
	clears int
}

func (c *fakeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// fakeClock is a manually advanced clock for cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
