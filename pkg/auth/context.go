// Package auth provides API key authentication for the HTTP surfaces.
package auth

import (
	"context"
	"slices"
)

// contextKey is a private type for context keys.
type contextKey int

const (
	userContextKey contextKey = iota
	tokenContextKey
)

// UserContext holds the authenticated caller.
type UserContext struct {
	KeyName  string   `json:"key_name"`
	Tenants  []string `json:"tenants,omitempty"`
	AuthType string   `json:"auth_type"`
}

// AllowsTenant reports whether the caller may act on tenant. A key without
// a tenant list may act on any tenant.
func (uc *UserContext) AllowsTenant(tenant string) bool {
	if uc == nil || len(uc.Tenants) == 0 {
		return true
	}
	return slices.Contains(uc.Tenants, tenant)
}

// WithUserContext adds user context to the context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// GetUserContext retrieves user context from the context.
func GetUserContext(ctx context.Context) *UserContext {
	if uc, ok := ctx.Value(userContextKey).(*UserContext); ok {
		return uc
	}
	return nil
}

// WithToken adds a raw credential to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves the raw credential from the context.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
