package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
)

type AuthHandler struct {
	resolver *service.SessionResolver
	logger   *zap.Logger
}

func NewAuthHandler(resolver *service.SessionResolver, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		resolver: resolver,
		logger:   logger,
	}
}

type sessionResponse struct {
	Authenticated bool                `json:"authenticated"`
	User          *domain.SessionUser `json:"user,omitempty"`
	ExpiresAt     int64               `json:"expires_at,omitempty"`
	AccessToken   string              `json:"access_token,omitempty"`
	TokenType     string              `json:"token_type,omitempty"`
}

func toSessionResponse(session *domain.AuthSession) sessionResponse {
	if session == nil {
		return sessionResponse{}
	}
	return sessionResponse{
		Authenticated: true,
		User:          &session.User,
		ExpiresAt:     session.ExpiresAt.Unix(),
		AccessToken:   session.AccessToken,
		TokenType:     session.TokenType,
	}
}

// SignUp creates an account and signs it in
// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var creds service.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	session, err := h.resolver.SignUp(c.UserContext(), cookiestore.FiberJar(c), creds, clientInfo(c))
	if err != nil {
		status, message := authError(err)
		if status == fiber.StatusInternalServerError {
			h.logger.Error("sign up failed", zap.Error(err))
		}
		return errorJSON(c, status, message)
	}

	middleware.SetSession(c, session)
	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(session))
}

// SignIn handles email and password sign in
// POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var creds service.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	session, err := h.resolver.SignIn(c.UserContext(), cookiestore.FiberJar(c), creds, clientInfo(c))
	if err != nil {
		status, message := authError(err)
		if status == fiber.StatusInternalServerError {
			h.logger.Error("sign in failed", zap.Error(err))
		}
		return errorJSON(c, status, message)
	}

	middleware.SetSession(c, session)
	return c.JSON(toSessionResponse(session))
}

// Refresh rotates the tokens of the cookie session
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	session := h.resolver.Refresh(c.UserContext(), cookiestore.FiberJar(c))
	if session == nil {
		return errorJSON(c, fiber.StatusUnauthorized, "No active session")
	}

	middleware.SetSession(c, session)
	return c.JSON(toSessionResponse(session))
}

// SignOut ends the session on every subdomain
// POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	bridge := newShellBridge(c)
	h.resolver.SignOut(c.UserContext(), cookiestore.FiberJar(c), bridge.host())
	middleware.SetSession(c, nil)

	resp := fiber.Map{
		"message": "Signed out successfully",
	}
	if msg := bridge.encoded(); msg != "" {
		resp["host_message"] = msg
	}
	return c.JSON(resp)
}

// Session reports the current cookie session
// GET /api/v1/auth/session
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	return c.JSON(toSessionResponse(middleware.CurrentSession(c)))
}

// authError maps a sign in or sign up failure to a status and a message
// safe to show.
func authError(err error) (int, string) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest, validationErr.Message
	case errors.Is(err, service.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrAccountLocked):
		return fiber.StatusLocked, err.Error()
	case errors.Is(err, service.ErrEmailTaken):
		return fiber.StatusConflict, err.Error()
	default:
		return fiber.StatusInternalServerError, "Authentication failed"
	}
}
