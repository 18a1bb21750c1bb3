package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Authentication errors.
var (
	ErrNoCredentials = errors.New("no API key provided")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Authenticator validates the credential carried in a context.
type Authenticator interface {
	Authenticate(ctx context.Context) (*UserContext, error)
}

// APIKeyConfig holds API key configuration.
type APIKeyConfig struct {
	Keys []APIKey `yaml:"keys"`
}

// APIKey is one accepted key. Either Key (plain text) or KeyHash (bcrypt)
// is set. Tenants restricts the key to those tenants.
type APIKey struct {
	Name    string   `yaml:"name"`
	Key     string   `yaml:"key"`
	KeyHash string   `yaml:"key_hash"`
	Tenants []string `yaml:"tenants"`
}

// APIKeyAuthenticator authenticates using API keys.
type APIKeyAuthenticator struct {
	mu     sync.RWMutex
	plain  map[string]*APIKey
	hashed []*APIKey
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(cfg APIKeyConfig) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{plain: make(map[string]*APIKey)}
	for _, key := range cfg.Keys {
		a.AddKey(key)
	}
	return a
}

// Authenticate validates the API key and returns the caller.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context) (*UserContext, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, ErrNoCredentials
	}

	key := a.match(token)
	if key == nil {
		return nil, ErrInvalidAPIKey
	}

	return &UserContext{
		KeyName:  key.Name,
		Tenants:  key.Tenants,
		AuthType: "apikey",
	}, nil
}

func (a *APIKeyAuthenticator) match(token string) *APIKey {
	a.mu.RLock()
	defer a.mu.RUnlock()

	// Constant-time comparison against every plain key.
	var matched *APIKey
	for k, v := range a.plain {
		if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			matched = v
		}
	}
	if matched != nil {
		return matched
	}

	for _, v := range a.hashed {
		if bcrypt.CompareHashAndPassword([]byte(v.KeyHash), []byte(token)) == nil {
			return v
		}
	}
	return nil
}

// AddKey adds an API key at runtime.
func (a *APIKeyAuthenticator) AddKey(key APIKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if key.KeyHash != "" {
		a.hashed = append(a.hashed, &key)
		return
	}
	if key.Key != "" {
		a.plain[key.Key] = &key
	}
}

// Len returns the number of configured keys.
func (a *APIKeyAuthenticator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.plain) + len(a.hashed)
}

// HashKey returns the bcrypt hash to store as an APIKey's KeyHash.
func HashKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hash), nil
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
