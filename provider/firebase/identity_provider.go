package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campex/go-session"
	goerrors "github.com/goliatone/go-errors"
)

type identity struct {
	id            string
	email         string
	emailVerified bool
}

func (i identity) ID() string          { return i.id }
func (i identity) Email() string       { return i.email }
func (i identity) EmailVerified() bool { return i.emailVerified }

type credentials struct {
	identity     identity
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// Provider implements the session identity provider over the Identity
// Toolkit REST API. Sign out is local: credentials are dropped, nothing is
// revoked server side.
type Provider struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	creds     *credentials
	listeners map[uint64]func(session.Identity)
	seq       uint64
}

func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firebase: API key is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase: project id is required")
	}

	return &Provider{
		cfg:       cfg,
		client:    cfg.httpClient(),
		now:       time.Now,
		listeners: map[uint64]func(session.Identity){},
	}, nil
}

var (
	_ session.IdentityProvider = (*Provider)(nil)
	_ session.TokenSource      = (*Provider)(nil)
)

// OnUserChanged registers a listener and fires it once with the current
// identity so the subscriber resolves its initial loading state.
func (p *Provider) OnUserChanged(fn func(session.Identity)) (unsubscribe func()) {
	p.mu.Lock()
	p.seq++
	id := p.seq
	p.listeners[id] = fn
	creds := p.creds
	p.mu.Unlock()

	fn(toIdentity(creds))

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

type authPayload struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (session.Identity, error) {
	resp, err := p.authenticate(ctx, "accounts:signUp", email, password)
	if err != nil {
		return nil, err
	}

	return p.adopt(ctx, resp)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (session.Identity, error) {
	resp, err := p.authenticate(ctx, "accounts:signInWithPassword", email, password)
	if err != nil {
		return nil, err
	}

	return p.adopt(ctx, resp)
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.creds = nil
	p.mu.Unlock()

	p.notify()
	return nil
}

// CurrentIDToken returns a fresh ID token, exchanging the refresh token
// when the cached one is within a minute of expiry.
func (p *Provider) CurrentIDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	creds := p.creds
	p.mu.Unlock()

	if creds == nil {
		return "", session.ErrTokenUnavailable
	}

	if p.now().Add(time.Minute).Before(creds.expiresAt) {
		return creds.idToken, nil
	}

	return p.refresh(ctx, creds)
}

// Reload re-fetches account info for the signed in user and re-emits the
// identity. Called after email verification so downstream snapshots see the
// flipped flag.
func (p *Provider) Reload(ctx context.Context) error {
	p.mu.Lock()
	creds := p.creds
	p.mu.Unlock()

	if creds == nil {
		return session.ErrTokenUnavailable
	}

	info, err := p.lookup(ctx, creds.idToken)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.creds != nil && p.creds.identity.id == info.id {
		p.creds.identity = *info
	}
	p.mu.Unlock()

	p.notify()
	return nil
}

func (p *Provider) authenticate(ctx context.Context, action, email, password string) (*authResponse, error) {
	endpoint := fmt.Sprintf("%s/%s?key=%s", p.cfg.identityEndpoint(), action, url.QueryEscape(p.cfg.APIKey))

	body, err := json.Marshal(authPayload{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode auth payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "identity backend unreachable").
			WithTextCode(session.TextCodeBackendUnavailable)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read auth response")
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyAuthError(raw, httpResp.StatusCode)
	}

	resp := &authResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode auth response")
	}

	return resp, nil
}

// adopt stores credentials, enriches the identity with account info, and
// notifies listeners.
func (p *Provider) adopt(ctx context.Context, resp *authResponse) (session.Identity, error) {
	expiresIn, _ := strconv.Atoi(resp.ExpiresIn)
	if expiresIn == 0 {
		expiresIn = 3600
	}

	creds := &credentials{
		identity: identity{
			id:    resp.LocalID,
			email: resp.Email,
		},
		idToken:      resp.IDToken,
		refreshToken: resp.RefreshToken,
		expiresAt:    p.now().Add(time.Duration(expiresIn) * time.Second),
	}

	if info, err := p.lookup(ctx, resp.IDToken); err == nil {
		creds.identity = *info
	}

	p.mu.Lock()
	p.creds = creds
	p.mu.Unlock()

	p.notify()

	return creds.identity, nil
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

func (p *Provider) lookup(ctx context.Context, idToken string) (*identity, error) {
	endpoint := fmt.Sprintf("%s/accounts:lookup?key=%s", p.cfg.identityEndpoint(), url.QueryEscape(p.cfg.APIKey))

	body, _ := json.Marshal(map[string]string{"idToken": idToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build lookup request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "identity backend unreachable").
			WithTextCode(session.TextCodeBackendUnavailable)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read lookup response")
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyAuthError(raw, httpResp.StatusCode)
	}

	resp := &lookupResponse{}
	if err := json.Unmarshal(raw, resp); err != nil || len(resp.Users) == 0 {
		return nil, goerrors.New("account lookup returned no users", goerrors.CategoryInternal)
	}

	u := resp.Users[0]
	return &identity{
		id:            u.LocalID,
		email:         u.Email,
		emailVerified: u.EmailVerified,
	}, nil
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

func (p *Provider) refresh(ctx context.Context, creds *credentials) (string, error) {
	endpoint := fmt.Sprintf("%s/token?key=%s", p.cfg.tokenEndpoint(), url.QueryEscape(p.cfg.APIKey))

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {creds.refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build refresh request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "token backend unreachable").
			WithTextCode(session.TextCodeBackendUnavailable)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read refresh response")
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", classifyAuthError(raw, httpResp.StatusCode)
	}

	resp := &refreshResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode refresh response")
	}

	expiresIn, _ := strconv.Atoi(resp.ExpiresIn)
	if expiresIn == 0 {
		expiresIn = 3600
	}

	p.mu.Lock()
	if p.creds != nil && p.creds.refreshToken == creds.refreshToken {
		p.creds.idToken = resp.IDToken
		if resp.RefreshToken != "" {
			p.creds.refreshToken = resp.RefreshToken
		}
		p.creds.expiresAt = p.now().Add(time.Duration(expiresIn) * time.Second)
	}
	p.mu.Unlock()

	return resp.IDToken, nil
}

func (p *Provider) notify() {
	p.mu.Lock()
	creds := p.creds
	fns := make([]func(session.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	ident := toIdentity(creds)
	for _, fn := range fns {
		fn(ident)
	}
}

// toIdentity maps nil credentials to a nil interface, never a typed nil.
func toIdentity(creds *credentials) session.Identity {
	if creds == nil {
		return nil
	}
	return creds.identity
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// classifyAuthError maps Identity Toolkit error strings onto the package's
// tagged errors so callers never branch on raw status codes.
func classifyAuthError(raw []byte, status int) error {
	parsed := &apiError{}
	_ = json.Unmarshal(raw, parsed)
	message := parsed.Error.Message

	switch {
	case strings.HasPrefix(message, "EMAIL_EXISTS"):
		return session.ErrEmailAlreadyExists
	case strings.HasPrefix(message, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(message, "INVALID_PASSWORD"),
		strings.HasPrefix(message, "INVALID_LOGIN_CREDENTIALS"):
		return session.ErrBadCredentials
	case strings.HasPrefix(message, "USER_DISABLED"):
		return goerrors.New("account disabled", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden)
	case strings.HasPrefix(message, "TOKEN_EXPIRED"),
		strings.HasPrefix(message, "INVALID_REFRESH_TOKEN"),
		strings.HasPrefix(message, "INVALID_ID_TOKEN"):
		return session.ErrTokenUnavailable.WithMetadata(map[string]any{
			"cause": message,
		})
	default:
		return goerrors.New("identity backend error", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{
				"status":  status,
				"message": message,
			})
	}
}
