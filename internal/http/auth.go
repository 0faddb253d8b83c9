package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/repository"
	"aruba-auth/internal/service"
	"aruba-auth/internal/validation"
)

type signupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserType  string `json:"userType"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) signup(c *gin.Context) {
	if !h.allow(c, "signup") {
		return
	}

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.users.Signup(c.Request.Context(), service.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		UserType:  req.UserType,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
		case errors.Is(err, service.ErrDuplicateEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "An account with this email already exists"})
		default:
			h.internalError(c, "signup failed", err)
		}
		return
	}

	message := "Account created. Please check your email to verify your account."
	if !res.EmailSent {
		message = "Account created, but we could not send the verification email. You can request a new one later."
	}
	resp := gin.H{
		"message":   message,
		"emailSent": res.EmailSent,
		"user":      userToResponse(res.User),
	}
	if h.development && res.EmailError != nil {
		resp["emailError"] = res.EmailError.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) login(c *gin.Context) {
	if err := h.sessions.Ready(); err != nil {
		h.logger.WithError(err).Error("login unavailable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error. Please contact support."})
		return
	}
	if !h.allow(c, "login") {
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !validation.Email(domain.NormalizeEmail(req.Email)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid email address"})
		return
	}
	if !validation.Password(req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
		return
	}

	user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var locked *service.LockedError
		switch {
		case errors.As(err, &locked):
			retry := retryAfter(locked.Until)
			c.Header("Retry-After", strconv.Itoa(retry))
			c.JSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("Account locked due to too many failed login attempts. Try again in %d minutes.", (retry+59)/60),
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		default:
			h.internalError(c, "login failed", err)
		}
		return
	}

	token, err := h.sessions.Issue(user.ID, req.RememberMe)
	if err != nil {
		h.internalError(c, "issue session", err)
		return
	}
	http.SetCookie(c.Writer, h.sessions.Cookie(token))

	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

func retryAfter(until time.Time) int {
	secs := int(time.Until(until).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}

func (h *Handler) logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.sessions.ExpiredCookie())
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *Handler) verifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" && c.Request.Method == http.MethodPost {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		token = req.Token
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification token is required"})
		return
	}

	res, err := h.users.VerifyEmail(c.Request.Context(), token)
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification token has expired. Please request a new one."})
		return
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification token"})
		return
	case err != nil:
		h.internalError(c, "verify email", err)
		return
	}

	if res.AlreadyVerified {
		c.JSON(http.StatusOK, gin.H{"message": "Email already verified"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

func (h *Handler) resendVerification(c *gin.Context) {
	if !h.allow(c, "resend") {
		return
	}

	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.users.ResendVerification(c.Request.Context(), req.Email); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
			return
		}
		h.internalError(c, "resend verification", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "If an unverified account exists for this email, a new verification link has been sent."})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.SetCookie(c.Writer, h.sessions.ExpiredCookie())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		h.internalError(c, "load session user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToResponse(user)})
}
