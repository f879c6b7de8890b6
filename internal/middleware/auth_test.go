package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/auth"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/HSahraye/immigration-helper-ai-sub000/internal/session"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testSessionSecret = "test-session-secret-at-least-32-bytes!!"

// newTestLogger creates a logger that only shows errors in tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}))
}

func newTestVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(testSessionSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

// issueToken signs a session token for userID.
func issueToken(t *testing.T, v *auth.Verifier, userID string) string {
	t.Helper()
	token, err := v.Issue(domain.Identity{UserID: userID, Email: userID + "@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

// newTestAuthMiddleware creates an AuthMiddleware with a real verifier for testing.
func newTestAuthMiddleware(t *testing.T) (*AuthMiddleware, *auth.Verifier) {
	v := newTestVerifier(t)
	return NewAuthMiddleware(v, newTestLogger(), "/auth/signin"), v
}

// =============================================================================
// WithUser Middleware Tests
// =============================================================================

func TestWithUser_NoToken_ContinuesAnonymous(t *testing.T) {
	mw, _ := newTestAuthMiddleware(t)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if id := auth.GetIdentity(r.Context()); id != nil {
			t.Errorf("expected anonymous request, got %+v", id)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()
	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWithUser_ValidCookie_SetsIdentity(t *testing.T) {
	mw, v := newTestAuthMiddleware(t)

	var captured *domain.Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = auth.GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: issueToken(t, v, "user-42")})
	rec := httptest.NewRecorder()
	mw.WithUser(handler).ServeHTTP(rec, req)

	if captured == nil {
		t.Fatal("identity not set in context")
	}
	if captured.UserID != "user-42" {
		t.Errorf("UserID = %q, want %q", captured.UserID, "user-42")
	}
	if captured.Email != "user-42@example.com" {
		t.Errorf("Email = %q, want %q", captured.Email, "user-42@example.com")
	}
}

func TestWithUser_BearerToken_SetsIdentity(t *testing.T) {
	mw, v := newTestAuthMiddleware(t)

	var captured *domain.Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = auth.GetIdentity(r.Context())
	})

	req := httptest.NewRequest("POST", "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, v, "user-7"))
	mw.WithUser(handler).ServeHTTP(httptest.NewRecorder(), req)

	if captured == nil || captured.UserID != "user-7" {
		t.Fatalf("expected identity user-7, got %+v", captured)
	}
}

func TestWithUser_InvalidToken_ContinuesAnonymous(t *testing.T) {
	mw, _ := newTestAuthMiddleware(t)

	other, err := auth.NewVerifier("a-completely-different-secret-value!!")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong signature", issueToken(t, other, "user-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				if id := auth.GetIdentity(r.Context()); id != nil {
					t.Errorf("expected anonymous request, got %+v", id)
				}
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: tt.token})
			mw.WithUser(handler).ServeHTTP(httptest.NewRecorder(), req)

			if !handlerCalled {
				t.Error("handler was not called")
			}
		})
	}
}

// =============================================================================
// RequireUser Middleware Tests
// =============================================================================

func TestRequireUser_WithIdentity_ContinuesToHandler(t *testing.T) {
	mw, _ := newTestAuthMiddleware(t)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/subscription", nil)
	req = req.WithContext(auth.SetIdentity(req.Context(), &domain.Identity{UserID: "user-1"}))
	rec := httptest.NewRecorder()
	mw.RequireUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireUser_NoIdentity_HTMLRequest_Redirects(t *testing.T) {
	mw, _ := newTestAuthMiddleware(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/account?tab=billing", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	mw.RequireUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if location.Path != "/auth/signin" {
		t.Errorf("Location path = %q, want /auth/signin", location.Path)
	}
	if got := location.Query().Get("callbackUrl"); got != "/account?tab=billing" {
		t.Errorf("callbackUrl = %q, want %q", got, "/account?tab=billing")
	}
	if location.Query().Has("limit") {
		t.Error("plain sign-in redirect should not carry limit=reached")
	}
}

func TestRequireUser_NoIdentity_APIRequest_Returns401(t *testing.T) {
	mw, _ := newTestAuthMiddleware(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/api/subscription", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	mw.RequireUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestIsAPIRequest(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		accept string
		ctype  string
		want   bool
	}{
		{"json accept", "/chat", "application/json", "", true},
		{"json body", "/chat", "", "application/json", true},
		{"api path", "/api/chat", "", "", true},
		{"browser on api path", "/api/chat", "text/html,application/xhtml+xml", "", false},
		{"plain page", "/pricing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.ctype != "" {
				req.Header.Set("Content-Type", tt.ctype)
			}
			if got := isAPIRequest(req); got != tt.want {
				t.Errorf("isAPIRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSigninURL_LimitReached(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/chat/agent?lang=fa", nil)
	got := signinURL("/auth/signin", req, true)

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("invalid url %q: %v", got, err)
	}
	if u.Query().Get("limit") != "reached" {
		t.Errorf("limit = %q, want reached", u.Query().Get("limit"))
	}
	if u.Query().Get("callbackUrl") != "/api/chat/agent?lang=fa" {
		t.Errorf("callbackUrl = %q", u.Query().Get("callbackUrl"))
	}
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "a,b,c,handler" {
		t.Errorf("order = %s, want a,b,c,handler", got)
	}
}
