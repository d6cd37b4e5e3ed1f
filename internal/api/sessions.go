package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/leadgen-assistant/internal/auth"
	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
	"github.com/eternisai/leadgen-assistant/internal/generation"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// MessageRequest is the body of POST /api/sessions/:id/messages.
type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	s, err := h.sessions.Create(userID)
	if err != nil {
		h.abortWithError(c, err, "Failed to start a conversation")
		return
	}

	c.JSON(http.StatusCreated, s.Snapshot())
}

// GetSession handles GET /api/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// PostMessage handles POST /api/sessions/:id/messages
//
// The text is routed by the conversation phase: an answer while asking, a
// confirmation on the summary or after a failure, a restart choice after success.
func (h *Handler) PostMessage(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "text is required", nil)
		return
	}

	// A submission outlives the request that triggered it.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.Send(ctx, req.Text); err != nil {
		h.abortWithError(c, err, "Failed to process message")
		return
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

// ResetSession handles POST /api/sessions/:id/reset
func (h *Handler) ResetSession(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}
	s.Reset()
	c.JSON(http.StatusOK, s.Snapshot())
}

// DeleteSession handles DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(s.ID()); err != nil {
		h.abortWithError(c, err, "Failed to end the conversation")
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedSession resolves :id to a session of the authenticated user. Sessions of
// other users are reported as missing.
func (h *Handler) ownedSession(c *gin.Context) (*generation.Session, bool) {
	userID, _ := auth.GetUserID(c)
	sessionID := c.Param("id")

	s, err := h.sessions.Get(sessionID)
	if err == nil && s.UserID() != userID {
		h.logger.WithContext(c.Request.Context()).WithComponent("api").Warn("session ownership validation failed",
			slog.String("session_id", sessionID),
			slog.String("session_owner", s.UserID()))
		err = generation.ErrSessionNotFound
	}
	if err != nil {
		h.abortWithError(c, err, "Session not found")
		return nil, false
	}

	c.Request = c.Request.WithContext(logger.WithSessionID(c.Request.Context(), sessionID))
	return s, true
}
