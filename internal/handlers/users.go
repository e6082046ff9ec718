package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zolsal/price-service/internal/auth"
	"github.com/zolsal/price-service/internal/store"
)

// Authenticator is the slice of the auth service the user endpoints use.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*store.User, string, error)
	Login(ctx context.Context, email, password string) (*store.User, string, error)
}

// CredentialsRequest represents the body for register and login
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResponse represents a successful register or login
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// AuthHandler serves user registration and login.
type AuthHandler struct {
	auth Authenticator
}

// NewAuthHandler creates an auth handler around the auth service.
func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register creates a user account and returns a bearer token
// @Summary Register
// @Description Creates an account for the email and returns a JWT for the carts endpoints
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body CredentialsRequest true "Email and password"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_body", "a valid email and a password are required")
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			abortError(c, http.StatusBadRequest, "weak_password", err.Error())
		case errors.Is(err, store.ErrDuplicate):
			abortError(c, http.StatusConflict, "email_taken", "an account with this email already exists")
		default:
			abortError(c, http.StatusInternalServerError, "registration_failed", "failed to register")
		}
		return
	}

	c.JSON(http.StatusCreated, authResponse(user, token))
}

// Login verifies credentials and returns a bearer token
// @Summary Log in
// @Description Verifies the email and password and returns a JWT for the carts endpoints
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body CredentialsRequest true "Email and password"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse "Unknown email or wrong password"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_body", "a valid email and a password are required")
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			abortError(c, http.StatusUnauthorized, "invalid_credentials", "unknown email or wrong password")
			return
		}
		abortError(c, http.StatusInternalServerError, "login_failed", "failed to log in")
		return
	}

	c.JSON(http.StatusOK, authResponse(user, token))
}

func authResponse(user *store.User, token string) AuthResponse {
	return AuthResponse{
		User: UserResponse{
			ID:        user.UserID,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
		Token: token,
	}
}
