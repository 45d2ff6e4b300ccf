package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Issuer is the expected iss claim.
	Issuer string `yaml:"issuer"`

	// SigningKey is the HMAC key used to verify signatures.
	SigningKey string `yaml:"signing_key"`

	// RoleClaimPath is the dot-separated path to roles, e.g.
	// "realm_access.roles".
	RoleClaimPath string `yaml:"role_claim"`
}

// JWTAuthenticator validates HMAC-signed bearer tokens.
type JWTAuthenticator struct {
	cfg JWTConfig
}

// NewJWTAuthenticator creates a JWT authenticator.
func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("jwt signing key is required")
	}
	if cfg.RoleClaimPath == "" {
		cfg.RoleClaimPath = "roles"
	}
	return &JWTAuthenticator{cfg: cfg}, nil
}

// Authenticate validates the token in ctx and returns its subject.
func (a *JWTAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	token := bearer(GetToken(ctx))
	if token == "" {
		return nil, errors.New("no token found in context")
	}

	claims, err := a.parseAndValidate(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, errors.New("missing sub claim")
	}
	email, _ := claims["email"].(string)

	return &UserContext{
		UserID:   userID,
		Email:    email,
		Roles:    stringSlice(claimAt(claims, a.cfg.RoleClaimPath)),
		Claims:   claims,
		AuthType: AuthTypeJWT,
	}, nil
}

func (a *JWTAuthenticator) parseAndValidate(tokenString string) (map[string]any, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.SigningKey), nil
	}, jwt.WithIssuer(a.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid claims")
	}

	out := make(map[string]any, len(claims))
	maps.Copy(out, claims)
	return out, nil
}

// claimAt walks a dot-separated path through nested claim objects.
func claimAt(claims map[string]any, path string) any {
	var current any = claims
	for part := range strings.SplitSeq(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func stringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(x)
	default:
		return nil
	}
}

// Verify interface compliance.
var _ Authenticator = (*JWTAuthenticator)(nil)
