// Package session provides shared session constants used by both
// the auth and middleware packages.
package session

// CookieName is the name of the cookie that carries the session token
// issued by the identity provider.
const CookieName = "session_token"
