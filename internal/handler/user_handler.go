package handler

import (
	"errors"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
)

type UserHandler struct {
	profiles *service.ProfileService
	balances *service.BalanceService
	cookies  *cookiestore.Store
	logger   *zap.Logger
}

func NewUserHandler(profiles *service.ProfileService, balances *service.BalanceService, cookies *cookiestore.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		profiles: profiles,
		balances: balances,
		cookies:  cookies,
		logger:   logger,
	}
}

// currentProfile loads the profile of the request or writes the error
// response. A nil profile means the response was already sent.
func (h *UserHandler) currentProfile(c *fiber.Ctx) (*domain.UserProfile, error) {
	session := middleware.CurrentSession(c)
	if !h.profiles.Authenticated(session) {
		return nil, errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	profile := h.profiles.GetCurrentUser(c.UserContext(), session)
	if profile == nil {
		return nil, errorJSON(c, fiber.StatusServiceUnavailable, "Failed to load profile")
	}
	return profile, nil
}

// GetMe returns the profile of the signed-in identity, creating it on
// first sight
// GET /api/v1/users/me
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	profile, err := h.currentProfile(c)
	if profile == nil {
		return err
	}

	rememberUsername(c, h.cookies, profile)
	return c.JSON(profile)
}

// UpdateMe saves the editable profile fields
// PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	var update domain.ProfileUpdate
	if err := c.BodyParser(&update); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	profile, err := h.profiles.SaveUser(c.UserContext(), middleware.CurrentSession(c), update)
	if err != nil {
		status, message := saveError(err)
		return errorJSON(c, status, message)
	}

	rememberUsername(c, h.cookies, profile)
	return c.JSON(profile)
}

// UploadAvatar stores a new profile image and saves its URL
// POST /api/v1/users/me/avatar
func (h *UserHandler) UploadAvatar(c *fiber.Ctx) error {
	session := middleware.CurrentSession(c)

	fh, err := c.FormFile("avatar")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Please select an image file")
	}
	data, err := readUpload(fh)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Failed to read upload")
	}

	url, err := h.profiles.UploadAvatar(c.UserContext(), session, fh.Filename, fh.Header.Get(fiber.HeaderContentType), data)
	if err != nil {
		status, message := avatarError(err)
		return errorJSON(c, status, message)
	}

	profile, err := h.profiles.SaveUser(c.UserContext(), session, domain.ProfileUpdate{ProfileImageURL: &url})
	if err != nil {
		status, message := saveError(err)
		return errorJSON(c, status, message)
	}
	return c.JSON(profile)
}

// GetBalance returns the current $VIBZ balance
// GET /api/v1/users/me/balance
func (h *UserHandler) GetBalance(c *fiber.Ctx) error {
	profile, err := h.currentProfile(c)
	if profile == nil {
		return err
	}

	return c.JSON(fiber.Map{
		"vibz_balance": profile.VibzBalance,
	})
}

// GrantFree adds the free $VIBZ grant
// POST /api/v1/vibz/free
func (h *UserHandler) GrantFree(c *fiber.Ctx) error {
	profile, err := h.currentProfile(c)
	if profile == nil {
		return err
	}

	balance, err := h.balances.GrantFree(c.UserContext(), profile.ID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrGrantInFlight):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrBalanceReadFailed):
		return errorJSON(c, fiber.StatusBadGateway, service.ErrBalanceReadFailed.Error())
	default:
		h.logger.Error("free grant failed", zap.String("identity_id", profile.ID.String()), zap.Error(err))
		return errorJSON(c, fiber.StatusBadGateway, service.ErrBalanceUpdateFailed.Error())
	}

	return c.JSON(fiber.Map{
		"vibz_balance": balance,
	})
}

func rememberUsername(c *fiber.Ctx, cookies *cookiestore.Store, profile *domain.UserProfile) {
	if profile.Username != nil && *profile.Username != "" {
		cookies.Set(cookiestore.FiberJar(c), cookiestore.UsernameCookie, *profile.Username)
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// saveError maps a profile save failure to a status and its inline
// message.
func saveError(err error) (int, string) {
	var saveErr *service.SaveError
	if !errors.As(err, &saveErr) {
		return fiber.StatusInternalServerError, "Failed to save profile"
	}
	switch saveErr.Kind {
	case service.SaveUnauthenticated:
		return fiber.StatusUnauthorized, saveErr.Message
	case service.SaveInvalid:
		return fiber.StatusBadRequest, saveErr.Message
	default:
		return fiber.StatusInternalServerError, saveErr.Message
	}
}

func avatarError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		return fiber.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrAvatarNotImage), errors.Is(err, service.ErrAvatarTooLarge):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrStorageDisabled):
		return fiber.StatusServiceUnavailable, err.Error()
	default:
		return fiber.StatusBadGateway, "Failed to upload image"
	}
}
