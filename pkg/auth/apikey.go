package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKey is one accepted key. Exactly one of Key and Hash is set; Hash is
// a bcrypt digest produced by HashAPIKey.
type APIKey struct {
	Name  string   `yaml:"name"`
	Key   string   `yaml:"key"`
	Hash  string   `yaml:"hash"`
	Roles []string `yaml:"roles"`
}

// APIKeyAuthenticator authenticates using API keys.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(keys []APIKey) (*APIKeyAuthenticator, error) {
	for i, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("api key %d has no name", i)
		}
		if (k.Key == "") == (k.Hash == "") {
			return nil, fmt.Errorf("api key %s must set exactly one of key and hash", k.Name)
		}
		if k.Hash != "" && !strings.HasPrefix(k.Hash, "$2") {
			return nil, fmt.Errorf("api key %s hash is not a bcrypt digest", k.Name)
		}
	}
	return &APIKeyAuthenticator{keys: keys}, nil
}

// Authenticate matches the credential in ctx against every key.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	token := bearer(GetToken(ctx))
	if token == "" {
		return nil, errors.New("no API key found in context")
	}

	for i := range a.keys {
		k := &a.keys[i]
		if !k.matches(token) {
			continue
		}
		return &UserContext{
			UserID:   "apikey:" + k.Name,
			Roles:    k.Roles,
			Claims:   map[string]any{},
			AuthType: AuthTypeAPIKey,
		}, nil
	}
	return nil, errors.New("invalid API key")
}

func (k *APIKey) matches(token string) bool {
	if k.Hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(k.Key), []byte(token)) == 1
}

// HashAPIKey returns the bcrypt digest to store in place of key.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hashed), nil
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
