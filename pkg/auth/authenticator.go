package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/txn2/sql-gateway/pkg/apperror"
)

// Authenticator resolves the credential carried by ctx to a user.
type Authenticator interface {
	Authenticate(ctx context.Context) (*UserContext, error)
}

// Config configures authentication.
type Config struct {
	// Enabled turns authentication on. When off every request runs as
	// the anonymous user.
	Enabled bool `yaml:"enabled"`

	// AllowAnonymous admits requests that no authenticator accepts.
	AllowAnonymous bool `yaml:"allow_anonymous"`

	JWT     *JWTConfig `yaml:"jwt"`
	APIKeys []APIKey   `yaml:"api_keys"`
}

// NewFromConfig builds the authenticator chain for cfg: JWT first, then
// API keys.
func NewFromConfig(cfg Config) (Authenticator, error) {
	if !cfg.Enabled {
		return NewChainedAuthenticator(ChainedAuthConfig{AllowAnonymous: true}), nil
	}

	var chain []Authenticator
	if cfg.JWT != nil {
		a, err := NewJWTAuthenticator(*cfg.JWT)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
	}
	if len(cfg.APIKeys) > 0 {
		a, err := NewAPIKeyAuthenticator(cfg.APIKeys)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
	}
	if len(chain) == 0 && !cfg.AllowAnonymous {
		return nil, fmt.Errorf("authentication is enabled but no jwt or api_keys are configured")
	}
	return NewChainedAuthenticator(ChainedAuthConfig{AllowAnonymous: cfg.AllowAnonymous}, chain...), nil
}

// ChainedAuthenticator tries multiple authenticators in order.
type ChainedAuthenticator struct {
	authenticators []Authenticator
	allowAnonymous bool
}

// ChainedAuthConfig configures the chained authenticator.
type ChainedAuthConfig struct {
	AllowAnonymous bool
}

// NewChainedAuthenticator creates a new chained authenticator.
func NewChainedAuthenticator(cfg ChainedAuthConfig, authenticators ...Authenticator) *ChainedAuthenticator {
	return &ChainedAuthenticator{
		authenticators: authenticators,
		allowAnonymous: cfg.AllowAnonymous,
	}
}

// Authenticate tries each authenticator in order. Failures are
// AUTHENTICATION_ERROR.
func (c *ChainedAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	var lastErr error

	for _, a := range c.authenticators {
		uc, err := a.Authenticate(ctx)
		if err == nil && uc != nil {
			return uc, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if c.allowAnonymous {
		return &UserContext{
			UserID:   AuthTypeAnonymous,
			AuthType: AuthTypeAnonymous,
			Claims:   map[string]any{},
		}, nil
	}

	if lastErr != nil {
		return nil, apperror.Wrap(apperror.Authentication, "authentication failed", lastErr)
	}
	return nil, apperror.New(apperror.Authentication, "authentication failed")
}

// bearer strips a case-insensitive "Bearer " prefix.
func bearer(token string) string {
	const prefix = "bearer "
	if len(token) > len(prefix) && strings.EqualFold(token[:len(prefix)], prefix) {
		return strings.TrimSpace(token[len(prefix):])
	}
	return token
}

// Verify interface compliance.
var _ Authenticator = (*ChainedAuthenticator)(nil)
