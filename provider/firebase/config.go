package firebase

import (
	"net/http"
	"time"
)

const (
	defaultIdentityEndpoint = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenEndpoint    = "https://securetoken.googleapis.com/v1"
	defaultJWKSEndpoint     = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// Config holds Firebase project settings for the REST identity provider.
type Config struct {
	// APIKey is the web API key of the Firebase project.
	APIKey string

	// ProjectID is the Firebase project id, used as token audience.
	ProjectID string

	// IdentityEndpoint overrides the Identity Toolkit base URL (optional,
	// used by tests to point at a local server).
	IdentityEndpoint string

	// TokenEndpoint overrides the secure token base URL (optional).
	TokenEndpoint string

	// JWKSEndpoint overrides the JWKS URL used for token validation
	// (optional).
	JWKSEndpoint string

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is not set.
	// Default: 15 seconds.
	Timeout time.Duration
}

func (c Config) identityEndpoint() string {
	if c.IdentityEndpoint != "" {
		return c.IdentityEndpoint
	}
	return defaultIdentityEndpoint
}

func (c Config) tokenEndpoint() string {
	if c.TokenEndpoint != "" {
		return c.TokenEndpoint
	}
	return defaultTokenEndpoint
}

func (c Config) jwksEndpoint() string {
	if c.JWKSEndpoint != "" {
		return c.JWKSEndpoint
	}
	return defaultJWKSEndpoint
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &http.Client{Timeout: timeout}
}
