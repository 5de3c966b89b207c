package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
)

type SessionHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewSessionHandler(auth *service.AuthService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		auth:   auth,
		logger: logger,
	}
}

// SessionResponse represents a session without sensitive data
type SessionResponse struct {
	ID        string `json:"id"`
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
}

// GetMySessions lists the signed-in browsers of the current identity
// GET /api/v1/users/me/sessions
func (h *SessionHandler) GetMySessions(c *fiber.Ctx) error {
	session := middleware.CurrentSession(c)
	if session == nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	sessions, err := h.auth.ListSessions(c.UserContext(), session.User.ID)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.String("identity_id", session.User.ID.String()), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to retrieve sessions")
	}

	response := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		response[i] = SessionResponse{
			ID:        s.ID.String(),
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		}
	}

	return c.JSON(fiber.Map{
		"sessions": response,
		"count":    len(response),
	})
}

// DeleteSession signs out one browser of the current identity
// DELETE /api/v1/users/me/sessions/:id
func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	session := middleware.CurrentSession(c)
	if session == nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid session ID")
	}

	if err := h.auth.CloseSession(c.UserContext(), session.User.ID, sessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "Session not found")
		}
		h.logger.Error("failed to close session", zap.String("session_id", sessionID.String()), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to delete session")
	}

	return c.JSON(fiber.Map{
		"message": "Session closed successfully",
	})
}
