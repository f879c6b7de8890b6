// Package auth provides authentication context helpers and session token
// verification.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the key used to store the caller identity in context.
	identityContextKey contextKey = "identity"
)

// GetIdentity retrieves the authenticated caller from the context.
//
// Returns nil if the request is anonymous.
//
// Usage:
//
//	id := auth.GetIdentity(r.Context())
//	if id == nil {
//	    // Handle anonymous request
//	}
func GetIdentity(ctx context.Context) *domain.Identity {
	id, ok := ctx.Value(identityContextKey).(*domain.Identity)
	if !ok {
		return nil
	}
	return id
}

// GetIdentityFromRequest retrieves the authenticated caller from the request context.
func GetIdentityFromRequest(r *http.Request) *domain.Identity {
	return GetIdentity(r.Context())
}

// SetIdentity stores a caller identity in the context.
//
// This is called by authentication middleware after verifying a session token.
func SetIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}
