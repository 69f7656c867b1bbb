// Package apiclient talks to the marketplace backend. It implements the
// session profile store and code verifier over the REST API, unwrapping the
// backend's response envelope and translating status codes into the tagged
// errors the session package branches on.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campex/go-session"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds client settings.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.campex.app".
	BaseURL string

	// Tokens provides a fresh ID token per request.
	Tokens session.TokenSource

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is not set.
	// Default: 15 seconds.
	Timeout time.Duration
}

// Client is the REST adapter. Every request fetches a fresh token from the
// token source; tokens are never cached here.
type Client struct {
	baseURL string
	tokens  session.TokenSource
	client  *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("apiclient: base URL is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		client:  client,
	}, nil
}

var (
	_ session.ProfileStore = (*Client)(nil)
	_ session.CodeVerifier = (*Client)(nil)
)

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) FetchMine(ctx context.Context) (*session.Profile, error) {
	profile := &session.Profile{}
	err := c.do(ctx, http.MethodGet, "/api/users/me", nil, profile, classifyProfileFetch)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *Client) CreateProfile(ctx context.Context, payload session.ProfileSetupPayload) (*session.Profile, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile payload").
			WithCode(goerrors.CodeBadRequest)
	}

	profile := &session.Profile{}
	err := c.do(ctx, http.MethodPost, "/api/users/create-profile", payload, profile, nil)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, payload session.UpdateProfilePayload) (*session.Profile, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile update").
			WithCode(goerrors.CodeBadRequest)
	}

	profile := &session.Profile{}
	err := c.do(ctx, http.MethodPut, "/api/users/me", payload, profile, classifyProfileFetch)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *Client) DeleteProfile(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/users/me", nil, nil, classifyProfileFetch)
}

func (c *Client) SendVerificationCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/send-verification-code",
		map[string]string{"email": email}, nil, classifyCode)
}

func (c *Client) VerifyCode(ctx context.Context, email, code string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/verify-code",
		map[string]string{"email": email, "code": code}, nil, classifyCode)
}

func (c *Client) SendPasswordResetCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/send-password-reset-code",
		map[string]string{"email": email}, nil, classifyCode)
}

func (c *Client) VerifyResetCode(ctx context.Context, email, code string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/verify-reset-code",
		map[string]string{"email": email, "code": code}, nil, classifyCode)
}

func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password",
		map[string]string{"email": email, "code": code, "newPassword": newPassword}, nil, classifyCode)
}

// classifier maps a non-2xx response onto a tagged error. Returning nil
// falls through to the generic classification.
type classifier func(status int, message string) error

// classifyProfileFetch treats 404 and 422 as the benign "profile not
// created yet" outcome; both surface as the same tagged error.
func classifyProfileFetch(status int, message string) error {
	if status == http.StatusNotFound || status == http.StatusUnprocessableEntity {
		return session.ErrProfileNotFound
	}
	return nil
}

func classifyCode(status int, message string) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(message), "expired") {
			return session.ErrCodeExpired
		}
		return session.ErrInvalidCode
	case http.StatusTooManyRequests:
		return session.ErrResendCooldown
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any, classify classifier) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request payload")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.CurrentIDToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "backend unreachable").
			WithTextCode(session.TextCodeBackendUnavailable).
			WithMetadata(map[string]any{
				"method": method,
				"path":   path,
			})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read response body")
	}

	env := &envelope{}
	message := ""
	if jsonErr := json.Unmarshal(raw, env); jsonErr == nil {
		message = env.Message
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if classify != nil {
			if tagged := classify(resp.StatusCode, message); tagged != nil {
				return tagged
			}
		}
		return classifyGeneric(resp.StatusCode, message, method, path)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode response data").
			WithMetadata(map[string]any{
				"method": method,
				"path":   path,
			})
	}

	return nil
}

func classifyGeneric(status int, message, method, path string) error {
	meta := map[string]any{
		"status": status,
		"method": method,
		"path":   path,
	}
	if message != "" {
		meta["message"] = message
	}

	switch {
	case status == http.StatusUnauthorized:
		return goerrors.New("request not authorized", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(meta)
	case status == http.StatusForbidden:
		return goerrors.New("request forbidden", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithMetadata(meta)
	case status == http.StatusConflict:
		return goerrors.New("resource conflict", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithMetadata(meta)
	case status >= 500:
		return goerrors.New("backend error", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(session.TextCodeBackendUnavailable).
			WithMetadata(meta)
	default:
		return goerrors.New("request rejected", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(meta)
	}
}
