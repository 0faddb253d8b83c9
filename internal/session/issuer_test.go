package session

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("super-secret", false)

	tok, err := issuer.Issue("user-123", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, tok.TTL)

	userID, err := issuer.Parse(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestRememberMeLastsThirtyDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer("super-secret", true).WithClock(func() time.Time { return now })

	tok, err := issuer.Issue("u1", true)
	require.NoError(t, err)
	assert.Equal(t, RememberMeTTL, tok.TTL)
	assert.Equal(t, now.Add(30*24*time.Hour), tok.ExpiresAt)

	cookie := issuer.Cookie(tok)
	assert.Equal(t, 30*24*60*60, cookie.MaxAge)
	assert.True(t, cookie.Secure)
}

func TestParseExpired(t *testing.T) {
	now := time.Now()
	issuer := NewIssuer("secret", false).WithClock(func() time.Time { return now })

	tok, err := issuer.Issue("u1", false)
	require.NoError(t, err)

	now = now.Add(DefaultTTL + time.Minute)
	_, err = issuer.Parse(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestParseWrongSecretAndGarbage(t *testing.T) {
	tok, err := NewIssuer("right-secret", false).Issue("u2", false)
	require.NoError(t, err)

	_, err = NewIssuer("wrong-secret", false).Parse(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = NewIssuer("right-secret", false).Parse("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMissingSecret(t *testing.T) {
	issuer := NewIssuer("   ", false)

	assert.ErrorIs(t, issuer.Ready(), ErrMissingSecret)
	_, err := issuer.Issue("u1", false)
	assert.True(t, errors.Is(err, ErrMissingSecret))
	_, err = issuer.Parse("anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestCookieAttributes(t *testing.T) {
	issuer := NewIssuer("secret", false)

	tok, err := issuer.Issue("u1", false)
	require.NoError(t, err)

	cookie := issuer.Cookie(tok)
	assert.Equal(t, CookieName, cookie.Name)
	assert.Equal(t, tok.Value, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 24*60*60, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	expired := issuer.ExpiredCookie()
	assert.Empty(t, expired.Value)
	assert.True(t, expired.Expires.Before(time.Now()))
	assert.Negative(t, expired.MaxAge)
}
