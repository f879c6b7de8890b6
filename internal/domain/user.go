// Package domain contains core business types and interfaces.
//
// This file defines the caller identity resolved from a session token.
// Accounts themselves are owned by the external auth provider; the quota
// engine only needs a stable user ID.
package domain

import "time"

// Identity is an authenticated caller.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// DisplayName returns the caller's name or email if name is empty.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}
