package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/leadgen-assistant/internal/auth"
	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login. The returned token authorizes the
// protected routes as `Authorization: Bearer <token>`.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "email and password are required", nil)
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.abortWithError(c, err, "Login failed")
		return
	}

	// The view belongs to the new account.
	if err := h.leads.Load(c.Request.Context()); err != nil {
		h.logger.WithContext(c.Request.Context()).Warn("initial leads load failed after login", slog.String("error", err.Error()))
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  user,
		"token": h.auth.Token(),
		"quota": auth.GetQuotaStatus(user),
	})
}

// Logout handles POST /api/auth/logout. Local state is cleared even when the backend call fails.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		h.abortWithError(c, err, "Logout failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	user, ok := h.auth.User()
	if !ok {
		h.abortWithError(c, auth.ErrNotAuthenticated, "Authentication required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Quota handles GET /api/auth/quota?refresh=true
func (h *Handler) Quota(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if _, err := h.auth.RefreshProfile(c.Request.Context()); err != nil {
			h.abortWithError(c, err, "Failed to load profile")
			return
		}
	}

	user, ok := h.auth.User()
	if !ok {
		h.abortWithError(c, auth.ErrNotAuthenticated, "Authentication required")
		return
	}
	c.JSON(http.StatusOK, auth.GetQuotaStatus(user))
}
