package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/checkout"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
	logger   *zap.Logger
}

func NewCheckoutHandler(checkoutService *service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkoutService,
		logger:   logger,
	}
}

// Initiate opens a hosted checkout and sends the browser there
// POST /api/v1/checkout
func (h *CheckoutHandler) Initiate(c *fiber.Ctx) error {
	url, err := h.checkout.Initiate(c.UserContext(), middleware.CurrentSession(c), requestOrigin(c))
	if err != nil {
		status, message := checkoutError(err)
		return errorJSON(c, status, message)
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}

// Webhook processes Stripe deliveries
// POST /api/v1/checkout/webhook
func (h *CheckoutHandler) Webhook(c *fiber.Ctx) error {
	result, err := h.checkout.HandleWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidWebhook) {
			return errorJSON(c, fiber.StatusBadRequest, "Invalid webhook")
		}
		h.logger.Error("webhook processing failed", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Webhook processing failed")
	}

	return c.JSON(result)
}

// CreateSession serves the checkout endpoint for bearer-authenticated
// callers
// POST /functions/v1/stripe-checkout
func (h *CheckoutHandler) CreateSession(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var params checkout.Params
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if params.SuccessURL == "" || params.CancelURL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "success_url and cancel_url are required")
	}

	url, err := h.checkout.CreateStripeSession(c.UserContext(), claims.UserID, claims.Email, params)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUnknownPrice):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCheckoutDisabled):
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("stripe checkout failed", zap.String("identity_id", claims.UserID.String()), zap.Error(err))
		return errorJSON(c, fiber.StatusBadGateway, "Failed to create checkout session")
	}

	return c.JSON(checkout.Session{URL: url})
}

// checkoutError maps an initiation failure to a status and the message
// shown to the user. Endpoint errors carry the endpoint's own text.
func checkoutError(err error) (int, string) {
	var endpointErr *checkout.Error
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		return fiber.StatusUnauthorized, "Please sign in to buy $VIBZ"
	case errors.Is(err, service.ErrCheckoutDisabled):
		return fiber.StatusServiceUnavailable, err.Error()
	case errors.As(err, &endpointErr):
		return fiber.StatusBadGateway, endpointErr.Error()
	default:
		return fiber.StatusBadGateway, "Failed to start checkout"
	}
}
