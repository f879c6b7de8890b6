package anonymous

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// QuotaCookieName carries the signed anonymous counter.
const QuotaCookieName = "anon_quota"

type counterClaims struct {
	Count int `json:"cnt"`
	jwt.RegisteredClaims
}

// CookieStore keeps the counter in an HS256-signed cookie. Clients can
// discard the cookie but cannot forge a lower count.
type CookieStore struct {
	secret []byte
	secure bool
	parser *jwt.Parser
	now    func() time.Time
}

// NewCookieStore creates a CookieStore signing with secret.
func NewCookieStore(secret string, secure bool) (*CookieStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("anonymous cookie secret must be set")
	}
	return &CookieStore{
		secret: []byte(secret),
		secure: secure,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})),
		now:    time.Now,
	}, nil
}

func (s *CookieStore) Load(r *http.Request) (domain.AnonymousCounter, error) {
	c, err := r.Cookie(QuotaCookieName)
	if err != nil || c.Value == "" {
		return domain.AnonymousCounter{}, nil
	}

	claims := &counterClaims{}
	token, err := s.parser.ParseWithClaims(c.Value, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		// Expired or tampered cookies start over.
		return domain.AnonymousCounter{}, nil
	}
	if !token.Valid {
		return domain.AnonymousCounter{}, nil
	}

	counter := domain.AnonymousCounter{ID: claims.ID, Count: claims.Count}
	if claims.ExpiresAt != nil {
		counter.ExpiresAt = claims.ExpiresAt.Time
	}
	return counter, nil
}

func (s *CookieStore) Commit(w http.ResponseWriter, r *http.Request, next domain.AnonymousCounter) (domain.AnonymousCounter, error) {
	claims := counterClaims{
		Count: next.Count,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        next.ID,
			ExpiresAt: jwt.NewNumericDate(next.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.AnonymousCounter{}, fmt.Errorf("sign anonymous counter: %w", err)
	}

	maxAge := int(next.ExpiresAt.Sub(s.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     QuotaCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return next, nil
}

func (s *CookieStore) Reset(w http.ResponseWriter, r *http.Request) error {
	if _, err := r.Cookie(QuotaCookieName); err != nil {
		return nil
	}
	clearCookie(w, QuotaCookieName, s.secure)
	return nil
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
