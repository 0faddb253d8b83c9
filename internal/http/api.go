package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/ratelimit"
	"aruba-auth/internal/service"
	"aruba-auth/internal/session"
)

// Options configures a Handler.
type Options struct {
	Users    service.UserService
	Sessions *session.Issuer
	Limiter  ratelimit.Limiter
	Logger   logrus.FieldLogger
	// Development exposes unexpected error details in responses.
	Development bool
	CORSOrigins []string
	// TrustedProxies are the proxy IPs or CIDRs allowed to set the client IP
	// through forwarding headers. Empty trusts none.
	TrustedProxies []string
}

// Handler wires HTTP routes to the account services.
type Handler struct {
	users          service.UserService
	sessions       *session.Issuer
	limiter        ratelimit.Limiter
	logger         logrus.FieldLogger
	development    bool
	corsOrigins    []string
	trustedProxies []string
}

func NewHandler(opts Options) *Handler {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Noop{}
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		opts.Logger = logger
	}
	return &Handler{
		users:          opts.Users,
		sessions:       opts.Sessions,
		limiter:        opts.Limiter,
		logger:         opts.Logger,
		development:    opts.Development,
		corsOrigins:    opts.CORSOrigins,
		trustedProxies: opts.TrustedProxies,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) error {
	// nil makes ClientIP ignore X-Forwarded-For and X-Real-IP
	var proxies []string
	if len(h.trustedProxies) > 0 {
		proxies = h.trustedProxies
	}
	if err := router.SetTrustedProxies(proxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router.Use(requestLogger(h.logger), recovery(h.logger))
	if mw := corsMiddleware(h.corsOrigins); mw != nil {
		router.Use(mw)
	}

	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.signup)
		auth.POST("/login", h.login)
		auth.POST("/logout", h.logout)
		auth.GET("/logout", h.logout)
		auth.GET("/verify-email", h.verifyEmail)
		auth.POST("/verify-email", h.verifyEmail)
		auth.POST("/resend-verification", h.resendVerification)
		auth.GET("/me", h.requireSession, h.me)
	}

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	return nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	var allowed []string
	wildcard := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			allowed = append(allowed, o)
		}
	}
	if !wildcard && len(allowed) == 0 {
		return nil
	}

	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if wildcard {
		// credentialed requests cannot use a literal "*", so echo the caller's origin
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowed
	}
	return cors.New(cfg)
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	Role          domain.Role `json:"role"`
	EmailVerified bool        `json:"emailVerified"`
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
	}
}

// internalError logs err and answers with a generic 500, adding the detail
// only in development.
func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.WithError(err).WithField("path", c.FullPath()).Error(msg)
	resp := gin.H{"error": "An unexpected error occurred. Please try again later."}
	if h.development {
		resp["details"] = err.Error()
	}
	c.JSON(http.StatusInternalServerError, resp)
}

// allow applies the rate limiter to the client IP. A failing backend does not
// block traffic.
func (h *Handler) allow(c *gin.Context, scope string) bool {
	ok, err := h.limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
	if err != nil {
		h.logger.WithError(err).WithField("scope", scope).Warn("rate limiter unavailable, allowing request")
		return true
	}
	if !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again later."})
		return false
	}
	return true
}
