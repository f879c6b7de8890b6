// Package middleware contains HTTP middleware for the quota engine.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/handler"
)

// TokenVerifier validates a session token and returns the caller.
type TokenVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// Sessions are issued by the external identity provider; this middleware
// only verifies them. Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	verifier   TokenVerifier
	logger     *slog.Logger
	signinPath string
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
//
// Parameters:
// - verifier: Validates session tokens
// - logger: Structured logger for auth events
// - signinPath: Where unauthenticated HTML requests are sent
func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger, signinPath string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   verifier,
		logger:     logger,
		signinPath: signinPath,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser is middleware that attempts to resolve the caller from the session
// token (cookie or Bearer header).
//
// A missing, malformed, or expired token leaves the request anonymous; it
// never fails the request. The identity can be retrieved in handlers using:
//
//	id := auth.GetIdentity(r.Context())
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.TokenFromRequest(r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoToken) {
				m.logger.Debug("ignoring malformed session credentials", "error", err, "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}

		id, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("invalid session token", "error", err, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		setLogUserID(r.Context(), id.UserID)
		next.ServeHTTP(w, r.WithContext(auth.SetIdentity(r.Context(), id)))
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires an authenticated caller.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
// API requests get a 401 JSON error; HTML requests are redirected to the
// sign-in page with a callbackUrl back to the original location.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetIdentity(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		if isAPIRequest(r) {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		http.Redirect(w, r, signinURL(m.signinPath, r, false), http.StatusSeeOther)
	})
}

// =============================================================================
// Request Helpers
// =============================================================================

// signinURL builds the sign-in redirect for r. limitReached adds the flag
// the sign-in page uses to explain why the caller was sent there.
func signinURL(signinPath string, r *http.Request, limitReached bool) string {
	q := url.Values{}
	if limitReached {
		q.Set("limit", "reached")
	}
	q.Set("callbackUrl", originalURL(r))
	return signinPath + "?" + q.Encode()
}

// originalURL returns the path and query of the request.
func originalURL(r *http.Request) string {
	u := r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// isAPIRequest determines if the request expects a JSON response.
//
// This is used to decide whether to redirect (HTML) or return JSON errors (API).
//
// Checks:
// 1. Accept header contains application/json
// 2. Content-Type is application/json
// 3. URL path starts with /api/
// 4. Accept header prefers text/html (browser navigation) -> not API
func isAPIRequest(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return true
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}

	if strings.Contains(accept, "text/html") {
		return false
	}

	return strings.HasPrefix(r.URL.Path, "/api/")
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/subscription", stack(subscriptionHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ TokenVerifier                   = (*auth.Verifier)(nil)
)
