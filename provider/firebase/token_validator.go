package firebase

import (
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenValidator verifies Firebase issued ID tokens against the Google
// secure token JWKS. It is the server side counterpart of the provider:
// backends receiving Bearer tokens from this client validate them here.
type TokenValidator struct {
	projectID string
	jwks      *keyfunc.JWKS
}

// NewTokenValidator fetches the JWKS and keeps it refreshed in the
// background. Callers should reuse a single validator.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase: project id is required")
	}

	jwks, err := keyfunc.Get(cfg.jwksEndpoint(), keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWT set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("firebase: failed to get JWKS: %w", err)
	}

	return &TokenValidator{
		projectID: cfg.ProjectID,
		jwks:      jwks,
	}, nil
}

// Claims is the validated subset of a Firebase ID token.
type Claims struct {
	UID           string
	Email         string
	EmailVerified bool
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Validate parses and verifies a raw ID token, checking signature, expiry,
// issuer, and audience.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	claims := &idTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(fmt.Sprintf("https://securetoken.google.com/%s", v.projectID)),
		jwt.WithAudience(v.projectID),
	)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if !token.Valid {
		return nil, goerrors.New("invalid token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	uid := claims.Subject
	if uid == "" {
		return nil, goerrors.New("token missing subject", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return &Claims{
		UID:           uid,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	v.jwks.EndBackground()
}

func normalizeValidationError(err error) error {
	category := goerrors.CategoryAuth
	message := "invalid authentication token"

	if stderrors.Is(err, jwt.ErrTokenExpired) {
		message = "authentication token expired"
	}

	return goerrors.Wrap(err, category, message).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{
			"provider": "firebase",
			"cause":    err.Error(),
		})
}
