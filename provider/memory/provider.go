// Package memory is an in-process identity backend. It backs tests and
// self hosted deployments that pair it with the local code verifier.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/campex/go-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type account struct {
	id            string
	email         string
	passwordHash  string
	emailVerified bool
}

type identity struct {
	id            string
	email         string
	emailVerified bool
}

func (i identity) ID() string          { return i.id }
func (i identity) Email() string       { return i.email }
func (i identity) EmailVerified() bool { return i.emailVerified }

// Provider keeps accounts in a map and emits user-changed events the way a
// hosted identity SDK would: immediately on subscribe, then on every sign
// in, sign out, and verification flip.
type Provider struct {
	mu        sync.Mutex
	accounts  map[string]*account
	current   *account
	listeners map[uint64]func(session.Identity)
	seq       uint64
	logger    session.Logger
}

type Option func(*Provider)

func WithLogger(logger session.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		accounts:  map[string]*account{},
		listeners: map[uint64]func(session.Identity){},
		logger:    noopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

var (
	_ session.IdentityProvider    = (*Provider)(nil)
	_ session.PasswordSetter      = (*Provider)(nil)
	_ session.EmailVerifiedMarker = (*Provider)(nil)
)

// OnUserChanged registers a listener and fires it once with the current
// identity, nil included, so subscribers always leave their loading state.
func (p *Provider) OnUserChanged(fn func(session.Identity)) (unsubscribe func()) {
	p.mu.Lock()
	p.seq++
	id := p.seq
	p.listeners[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(toIdentity(current))

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (session.Identity, error) {
	email = normalizeEmail(email)

	hash, err := session.HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, session.ErrEmailAlreadyExists.WithMetadata(map[string]any{
			"email": email,
		})
	}

	acct := &account{
		id:           uuid.NewString(),
		email:        email,
		passwordHash: hash,
	}
	p.accounts[email] = acct
	p.current = acct
	p.mu.Unlock()

	p.logger.Debug("registered account %s", email)
	p.notify()

	return toIdentity(acct), nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (session.Identity, error) {
	email = normalizeEmail(email)

	p.mu.Lock()
	acct, exists := p.accounts[email]
	p.mu.Unlock()

	// unknown account and wrong password produce the same error so sign in
	// does not leak which addresses are registered
	if !exists {
		return nil, session.ErrBadCredentials
	}

	if err := session.ComparePasswordAndHash(password, acct.passwordHash); err != nil {
		return nil, session.ErrBadCredentials
	}

	p.mu.Lock()
	p.current = acct
	p.mu.Unlock()

	p.notify()

	return toIdentity(acct), nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.notify()
	return nil
}

// CurrentIDToken returns an opaque token for the signed in account. The
// local stack has no real token exchange; pairing deployments with the API
// client requires the firebase provider instead.
func (p *Provider) CurrentIDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return "", session.ErrTokenUnavailable
	}

	return fmt.Sprintf("memory:%s", p.current.id), nil
}

// MarkEmailVerified flips the verified flag and re-emits the identity when
// it belongs to the signed in account.
func (p *Provider) MarkEmailVerified(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	p.mu.Lock()
	acct, exists := p.accounts[email]
	if !exists {
		p.mu.Unlock()
		return session.ErrIdentityNotFound.WithMetadata(map[string]any{
			"email": email,
		})
	}

	acct.emailVerified = true
	isCurrent := p.current == acct
	p.mu.Unlock()

	if isCurrent {
		p.notify()
	}

	return nil
}

// SetPassword applies a new credential, used by the password reset flow.
func (p *Provider) SetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)

	hash, err := session.HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, exists := p.accounts[email]
	if !exists {
		return session.ErrIdentityNotFound.WithMetadata(map[string]any{
			"email": email,
		})
	}

	acct.passwordHash = hash
	return nil
}

func (p *Provider) notify() {
	p.mu.Lock()
	current := p.current
	fns := make([]func(session.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	ident := toIdentity(current)
	for _, fn := range fns {
		fn(ident)
	}
}

// toIdentity snapshots an account into an immutable identity value. A nil
// account maps to a nil interface, never a typed nil.
func toIdentity(acct *account) session.Identity {
	if acct == nil {
		return nil
	}
	return identity{
		id:            acct.id,
		email:         acct.email,
		emailVerified: acct.emailVerified,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
