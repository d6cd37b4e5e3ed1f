package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/leadgen-assistant/internal/auth"
	"github.com/eternisai/leadgen-assistant/internal/backend"
	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
	"github.com/eternisai/leadgen-assistant/internal/generation"
	"github.com/eternisai/leadgen-assistant/internal/leads"
)

// abortWithError maps domain and backend errors onto HTTP responses. The body
// always carries the user-facing message, falling back to fallback.
func (h *Handler) abortWithError(c *gin.Context, err error, fallback string) {
	msg := apperrors.MessageOf(err, fallback)
	log := h.logger.WithContext(c.Request.Context()).WithComponent("api")

	var (
		quotaErr      *auth.QuotaExceededError
		bulkErr       *leads.BulkError
		validationErr *generation.ValidationError
		apiErr        *backend.APIError
	)

	switch {
	case errors.As(err, &quotaErr):
		apperrors.AbortWithQuotaExceeded(c, quotaErr.QuotaError)

	case errors.As(err, &bulkErr):
		apperrors.AbortWithBadGateway(c, msg, map[string]interface{}{
			"operation": bulkErr.Op,
			"failed":    bulkErr.IDs(),
		})

	case errors.As(err, &validationErr):
		apperrors.AbortWithBadRequest(c, msg, map[string]interface{}{"fields": validationErr.Fields})

	case errors.Is(err, generation.ErrSessionNotFound),
		errors.Is(err, leads.ErrLeadNotFound),
		errors.Is(err, leads.ErrTagNotFound):
		apperrors.AbortWithNotFound(c, err.Error(), nil)

	case errors.Is(err, leads.ErrNotConfirmed):
		apperrors.AbortWithPreconditionRequired(c, "Deletion must be confirmed with confirm=true", nil)

	case errors.Is(err, leads.ErrInvalidStatus),
		errors.Is(err, generation.ErrEmptyInput):
		apperrors.AbortWithBadRequest(c, err.Error(), nil)

	case errors.Is(err, generation.ErrBusy),
		errors.Is(err, generation.ErrNotAsking),
		errors.Is(err, generation.ErrNotConfirming),
		errors.Is(err, generation.ErrClosed):
		apperrors.AbortWithConflict(c, err.Error(), nil)

	case errors.Is(err, generation.ErrTooManySessions):
		apperrors.AbortWithStatus(c, http.StatusTooManyRequests, "Too many active sessions", nil)

	case errors.Is(err, generation.ErrManagerShutdown):
		apperrors.AbortWithStatus(c, http.StatusServiceUnavailable, "Server is shutting down", nil)

	case errors.Is(err, auth.ErrNotAuthenticated), backend.IsUnauthorized(err):
		apperrors.AbortWithUnauthorized(c, msg, nil)

	case backend.IsNotFound(err):
		apperrors.AbortWithNotFound(c, msg, nil)

	case errors.As(err, &apiErr):
		log.Warn("backend request failed",
			slog.Int("backend_status", apiErr.StatusCode),
			slog.String("backend_path", apiErr.Path),
			slog.String("error", err.Error()))
		apperrors.AbortWithBadGateway(c, msg, nil)

	default:
		log.Error("request failed", slog.String("error", err.Error()))
		apperrors.AbortWithInternal(c, msg, nil)
	}
}
