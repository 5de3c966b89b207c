package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/MatsTornblom/Vibzprofile/internal/metrics"
)

// Handlers groups every route handler of the service.
type Handlers struct {
	Auth     *AuthHandler
	User     *UserHandler
	Checkout *CheckoutHandler
	Sessions *SessionHandler
	Pages    *PageHandler
	Health   *HealthHandler
	JWKS     *JWKSHandler
}

func SetupRoutes(
	app *fiber.App,
	h Handlers,
	sessionMiddleware fiber.Handler,
	bearerAuth fiber.Handler,
) {
	// Health checks (public)
	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	app.Get("/version", h.Health.Version)
	app.Get("/.well-known/jwks.json", h.JWKS.GetJWKS)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Checkout endpoint for bearer-authenticated callers
	app.Post("/functions/v1/stripe-checkout", bearerAuth, h.Checkout.CreateSession)

	// API v1
	api := app.Group("/api/v1")
	api.Get("/client", h.Health.Client)

	// Stripe calls the webhook without cookies
	api.Post("/checkout/webhook", h.Checkout.Webhook)

	auth := api.Group("/auth", sessionMiddleware)
	auth.Post("/signup", h.Auth.SignUp)
	auth.Post("/signin", h.Auth.SignIn)
	auth.Post("/refresh", h.Auth.Refresh)
	auth.Post("/signout", h.Auth.SignOut)
	auth.Get("/session", h.Auth.Session)

	users := api.Group("/users", sessionMiddleware)
	users.Get("/me", h.User.GetMe)
	users.Put("/me", h.User.UpdateMe)
	users.Post("/me/avatar", h.User.UploadAvatar)
	users.Get("/me/balance", h.User.GetBalance)
	users.Get("/me/sessions", h.Sessions.GetMySessions)
	users.Delete("/me/sessions/:id", h.Sessions.DeleteSession)

	api.Post("/vibz/free", sessionMiddleware, h.User.GrantFree)
	api.Post("/checkout", sessionMiddleware, h.Checkout.Initiate)

	// Pages
	app.Get("/", sessionMiddleware, h.Pages.Home)
	app.Get("/account", sessionMiddleware, h.Pages.Account)
	app.Post("/account", sessionMiddleware, h.Pages.SaveProfile)
	app.Post("/signin", sessionMiddleware, h.Pages.SignIn)
	app.Post("/signup", sessionMiddleware, h.Pages.SignUp)
	app.Post("/signout", sessionMiddleware, h.Pages.SignOut)
	app.Post("/free", sessionMiddleware, h.Pages.FreeVibz)
	app.Post("/buy", sessionMiddleware, h.Pages.BuyVibz)
	app.Get("/success", h.Pages.Success)
	app.Get("/cancel", h.Pages.Cancel)
}
