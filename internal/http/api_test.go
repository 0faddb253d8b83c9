package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"aruba-auth/internal/mail"
	"aruba-auth/internal/password"
	"aruba-auth/internal/ratelimit"
	"aruba-auth/internal/repository/memory"
	"aruba-auth/internal/service"
	"aruba-auth/internal/session"
)

type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *captureMailer) SendVerification(_ context.Context, msg mail.VerificationEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[msg.Email] = msg.Token
	return nil
}

func (m *captureMailer) token(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type testServer struct {
	router *gin.Engine
	mailer *captureMailer
	repo   *memory.UserRepository
}

type serverOption func(*Options)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, _ := test.NewNullLogger()
	repo := memory.NewUserRepository()
	mailer := &captureMailer{tokens: make(map[string]string)}
	users, err := service.NewUserService(repo, service.Options{
		Hasher: password.NewBcrypt(bcrypt.MinCost),
		Mailer: mailer,
		Logger: logger,
	})
	require.NoError(t, err)

	o := Options{
		Users:    users,
		Sessions: session.NewIssuer("test-secret", false),
		Limiter:  ratelimit.NewMemory(ratelimit.Config{Window: time.Minute, Limit: 100}),
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	router := gin.New()
	require.NoError(t, NewHandler(o).RegisterRoutes(router))
	return &testServer{router: router, mailer: mailer, repo: repo}
}

func (s *testServer) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signup(t *testing.T, email string) {
	t.Helper()
	rec := s.do(http.MethodPost, "/auth/signup", gin.H{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     email,
		"password":  "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestSignupThenLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/signup", gin.H{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "JANE@Example.com ",
		"password":  "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["emailSent"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "jane@example.com", user["email"])
	assert.Equal(t, "Jane Doe", user["name"])
	assert.Equal(t, "USER", user["role"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, 86400, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	rec = s.do(http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, user["id"], me["id"])
	assert.Equal(t, false, me["emailVerified"])
}

func TestLoginRememberMe(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")

	rec := s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "password123", "rememberMe": true})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, 30*86400, cookie.MaxAge)
}

func TestSignupErrors(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")

	rec := s.do(http.MethodPost, "/auth/signup", gin.H{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "Jane@Example.com",
		"password":  "password123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "An account with this email already exists", decode(t, rec)["error"])

	rec = s.do(http.MethodPost, "/auth/signup", gin.H{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "other@example.com",
		"password":  "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password", decode(t, rec)["field"])

	rec = s.do(http.MethodPost, "/auth/signup", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupReportsUnsentEmail(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		logger, _ := test.NewNullLogger()
		users, err := service.NewUserService(memory.NewUserRepository(), service.Options{
			Hasher: password.NewBcrypt(bcrypt.MinCost),
			Mailer: mail.Disabled{},
			Logger: logger,
		})
		require.NoError(t, err)
		o.Users = users
		o.Development = true
	})

	rec := s.do(http.MethodPost, "/auth/signup", gin.H{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "jane@example.com",
		"password":  "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["emailSent"])
	assert.Equal(t, mail.ErrNotConfigured.Error(), body["emailError"])
}

func TestLoginInvalidCredentialsAreIdentical(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")

	unknown := s.do(http.MethodPost, "/auth/login", gin.H{"email": "nobody@example.com", "password": "password123"})
	wrong := s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "wrong-password"})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Nil(t, sessionCookie(wrong))
}

func TestLoginValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/login", gin.H{"email": "not-an-email", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/auth/login", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")

	for i := 1; i < service.MaxLoginAttempts; i++ {
		rec := s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "wrong-password"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 15*60, retry, 5)

	rec = s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "password123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, sessionCookie(rec))
}

func TestLoginWithoutSecret(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Sessions = session.NewIssuer("  ", false)
		o.Limiter = ratelimit.NewMemory(ratelimit.Config{Window: time.Minute, Limit: 1})
	})

	for i := 0; i < 3; i++ {
		rec := s.do(http.MethodPost, "/auth/login", "not json")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decode(t, rec)["error"], "Server configuration error")
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.Limiter = ratelimit.NewMemory(ratelimit.Config{Window: time.Minute, Limit: 2})
	})

	for i := 0; i < 2; i++ {
		rec := s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "password123"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.do(http.MethodPost, "/auth/login", gin.H{"email": "jane@example.com", "password": "password123"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// limits are tracked per route
	rec = s.do(http.MethodPost, "/auth/resend-verification", gin.H{"email": "jane@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitForwardedFor(t *testing.T) {
	login := func(s *testServer, forwardedFor string) int {
		body := strings.NewReader(`{"email":"jane@example.com","password":"password123"}`)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}
	limited := func(o *Options) {
		o.Limiter = ratelimit.NewMemory(ratelimit.Config{Window: time.Minute, Limit: 2})
	}

	t.Run("untrusted peer", func(t *testing.T) {
		s := newTestServer(t, limited)
		assert.Equal(t, http.StatusUnauthorized, login(s, "10.0.0.1"))
		assert.Equal(t, http.StatusUnauthorized, login(s, "10.0.0.2"))
		assert.Equal(t, http.StatusTooManyRequests, login(s, "10.0.0.3"))
	})

	t.Run("trusted proxy", func(t *testing.T) {
		// httptest requests come from 192.0.2.1
		s := newTestServer(t, limited, func(o *Options) { o.TrustedProxies = []string{"192.0.2.0/24"} })
		for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
			assert.Equal(t, http.StatusUnauthorized, login(s, ip), ip)
		}
		assert.Equal(t, http.StatusUnauthorized, login(s, "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, login(s, "10.0.0.1"))
	})
}

func TestRegisterRoutesRejectsBadProxy(t *testing.T) {
	h := NewHandler(Options{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, h.RegisterRoutes(gin.New()))
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := s.do(method, "/auth/logout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Less(t, cookie.MaxAge, 0)
	}
}

func TestVerifyEmail(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")
	token := s.mailer.token("jane@example.com")
	require.NotEmpty(t, token)

	rec := s.do(http.MethodGet, "/auth/verify-email?token="+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email verified successfully", decode(t, rec)["message"])

	rec = s.do(http.MethodPost, "/auth/verify-email", gin.H{"token": token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid verification token", decode(t, rec)["error"])

	rec = s.do(http.MethodGet, "/auth/verify-email", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Verification token is required", decode(t, rec)["error"])

	u, err := s.repo.FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestVerifyEmailByPost(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")

	rec := s.do(http.MethodPost, "/auth/verify-email", gin.H{"token": s.mailer.token("jane@example.com")})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResendVerification(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "jane@example.com")
	first := s.mailer.token("jane@example.com")

	rec := s.do(http.MethodPost, "/auth/resend-verification", gin.H{"email": "jane@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, first, s.mailer.token("jane@example.com"))

	unknown := s.do(http.MethodPost, "/auth/resend-verification", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, rec.Body.String(), unknown.Body.String())

	rec = s.do(http.MethodPost, "/auth/resend-verification", gin.H{"email": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/auth/resend-verification", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/auth/me", nil, &http.Cookie{Name: session.CookieName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := session.NewIssuer("another-secret", false)
	tok, err := other.Issue("someone", false)
	require.NoError(t, err)
	rec = s.do(http.MethodGet, "/auth/me", nil, other.Cookie(tok))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	valid, err := session.NewIssuer("test-secret", false).Issue("deleted-user", false)
	require.NoError(t, err)
	rec = s.do(http.MethodGet, "/auth/me", nil, &http.Cookie{Name: session.CookieName, Value: valid.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecoveryAndHealth(t *testing.T) {
	s := newTestServer(t)
	s.router.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := s.do(http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = s.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
