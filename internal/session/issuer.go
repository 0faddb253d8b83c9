// Package session mints and validates the stateless session cookie.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "session_token"

	DefaultTTL    = 24 * time.Hour
	RememberMeTTL = 30 * 24 * time.Hour
)

var (
	// ErrMissingSecret reports that no signing secret was configured.
	ErrMissingSecret = errors.New("session signing secret is not configured")
	// ErrInvalidSession covers malformed, tampered and expired tokens.
	ErrInvalidSession = errors.New("invalid session")
)

// Claims binds a session to a user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Token is a signed session together with its lifetime.
type Token struct {
	Value     string
	ExpiresAt time.Time
	TTL       time.Duration
}

// Issuer signs session tokens with an HMAC secret held by the server.
type Issuer struct {
	secret []byte
	secure bool
	now    func() time.Time
}

// NewIssuer builds an Issuer. secure controls the Secure cookie attribute
// and should be set in production.
func NewIssuer(secret string, secure bool) *Issuer {
	return &Issuer{
		secret: []byte(strings.TrimSpace(secret)),
		secure: secure,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Ready returns ErrMissingSecret when the issuer cannot sign tokens.
func (i *Issuer) Ready() error {
	if len(i.secret) == 0 {
		return ErrMissingSecret
	}
	return nil
}

// Issue signs a session for userID that lasts 30 days with rememberMe, 1 day otherwise.
func (i *Issuer) Issue(userID string, rememberMe bool) (Token, error) {
	if err := i.Ready(); err != nil {
		return Token{}, err
	}

	ttl := DefaultTTL
	if rememberMe {
		ttl = RememberMeTTL
	}
	now := i.now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign session: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt, TTL: ttl}, nil
}

// Parse validates signature and expiry and returns the user id.
func (i *Issuer) Parse(tokenString string) (string, error) {
	if err := i.Ready(); err != nil {
		return "", err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return "", ErrInvalidSession
	}
	return claims.UserID, nil
}

// Cookie wraps a token in the session cookie.
func (i *Issuer) Cookie(t Token) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    t.Value,
		Path:     "/",
		MaxAge:   int(t.TTL.Seconds()),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie returns a cookie that makes browsers drop the session immediately.
func (i *Issuer) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
