package handler

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
)

const (
	defaultAvatarURL     = "https://via.placeholder.com/150"
	confirmationRedirect = 5
)

// PageHandler renders the HTML pages and handles their form posts.
type PageHandler struct {
	resolver      *service.SessionResolver
	profiles      *service.ProfileService
	balances      *service.BalanceService
	checkout      *service.CheckoutService
	cookies       *cookiestore.Store
	authPortalURL string
	devMode       bool
	logger        *zap.Logger
}

func NewPageHandler(
	resolver *service.SessionResolver,
	profiles *service.ProfileService,
	balances *service.BalanceService,
	checkoutService *service.CheckoutService,
	cookies *cookiestore.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *PageHandler {
	_, devMode := cfg.DevUserID()
	return &PageHandler{
		resolver:      resolver,
		profiles:      profiles,
		balances:      balances,
		checkout:      checkoutService,
		cookies:       cookies,
		authPortalURL: strings.TrimRight(cfg.Server.AuthPortalURL, "/"),
		devMode:       devMode,
		logger:        logger,
	}
}

type flash struct {
	message string
	err     string
}

func (h *PageHandler) data(c *fiber.Ctx, title string) fiber.Map {
	return fiber.Map{
		"Title":        title,
		"InAppBrowser": detectClient(c).InApp,
		"DevMode":      h.devMode,
	}
}

// Home renders the dashboard, sending anonymous visitors to the auth portal
// GET /
func (h *PageHandler) Home(c *fiber.Ctx) error {
	if !h.profiles.Authenticated(middleware.CurrentSession(c)) {
		returnURL := c.BaseURL() + c.OriginalURL()
		h.cookies.Set(cookiestore.FiberJar(c), cookiestore.ReturnURLCookie, returnURL)
		return c.Redirect(h.authPortalURL+"/?returnUrl="+url.QueryEscape(returnURL), fiber.StatusFound)
	}
	return h.renderHome(c, fiber.StatusOK, flash{})
}

func (h *PageHandler) renderHome(c *fiber.Ctx, status int, f flash) error {
	data := h.data(c, "Dashboard")

	profile := h.profiles.GetCurrentUser(c.UserContext(), middleware.CurrentSession(c))
	if profile == nil {
		profile = &domain.UserProfile{}
		if f.err == "" {
			f.err = "Failed to load profile"
			status = fiber.StatusServiceUnavailable
		}
	} else {
		rememberUsername(c, h.cookies, profile)
	}

	avatar := defaultAvatarURL
	if profile.ProfileImageURL != nil && *profile.ProfileImageURL != "" {
		avatar = *profile.ProfileImageURL
	}

	data["User"] = profile
	data["AvatarURL"] = avatar
	data["Message"] = f.message
	data["Error"] = f.err
	return c.Status(status).Render("home", data, "layout")
}

// Account renders the account page, or the sign in form when anonymous
// GET /account
func (h *PageHandler) Account(c *fiber.Ctx) error {
	return h.renderAccount(c, fiber.StatusOK, "")
}

func (h *PageHandler) renderAccount(c *fiber.Ctx, status int, errMessage string) error {
	data := h.data(c, "Account")
	if profile := h.profiles.GetCurrentUser(c.UserContext(), middleware.CurrentSession(c)); profile != nil {
		data["User"] = profile
	}
	data["Error"] = errMessage
	return c.Status(status).Render("account", data, "layout")
}

// SignIn handles the account page form
// POST /signin
func (h *PageHandler) SignIn(c *fiber.Ctx) error {
	return h.authenticate(c, h.resolver.SignIn)
}

// SignUp handles the account page form
// POST /signup
func (h *PageHandler) SignUp(c *fiber.Ctx) error {
	return h.authenticate(c, h.resolver.SignUp)
}

type signInFunc func(context.Context, cookiestore.Jar, service.Credentials, domain.ClientInfo) (*domain.AuthSession, error)

func (h *PageHandler) authenticate(c *fiber.Ctx, signIn signInFunc) error {
	creds := service.Credentials{
		Email:    c.FormValue("email"),
		Password: c.FormValue("password"),
	}

	jar := cookiestore.FiberJar(c)
	session, err := signIn(c.UserContext(), jar, creds, clientInfo(c))
	if err != nil {
		status, message := authError(err)
		if status == fiber.StatusInternalServerError {
			h.logger.Error("form sign in failed", zap.Error(err))
		}
		return h.renderAccount(c, status, message)
	}
	middleware.SetSession(c, session)

	target := "/"
	if returnURL, ok := h.cookies.Get(jar, cookiestore.ReturnURLCookie); ok && h.sameSite(returnURL) {
		h.cookies.Remove(jar, cookiestore.ReturnURLCookie)
		target = returnURL
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

// sameSite reports whether target is on the cookie root domain, so a stored
// return URL cannot send the browser elsewhere.
func (h *PageHandler) sameSite(target string) bool {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	root := strings.TrimPrefix(h.cookies.Domain(), ".")
	host := u.Hostname()
	return root != "" && (host == root || strings.HasSuffix(host, "."+root))
}

// SignOut ends the session and hands the browser to the auth portal
// POST /signout
func (h *PageHandler) SignOut(c *fiber.Ctx) error {
	bridge := newShellBridge(c)
	h.resolver.SignOut(c.UserContext(), cookiestore.FiberJar(c), bridge.host())
	middleware.SetSession(c, nil)

	data := h.data(c, "Signed out")
	data["RedirectURL"] = h.authPortalURL + "/logout"
	data["RedirectAfter"] = 1
	data["HostMessage"] = bridge.encoded()
	return c.Render("signout", data, "layout")
}

// FreeVibz adds the free grant from the dashboard button
// POST /free
func (h *PageHandler) FreeVibz(c *fiber.Ctx) error {
	profile := h.profiles.GetCurrentUser(c.UserContext(), middleware.CurrentSession(c))
	if profile == nil {
		return c.Redirect("/", fiber.StatusSeeOther)
	}

	if _, err := h.balances.GrantFree(c.UserContext(), profile.ID); err != nil {
		if errors.Is(err, service.ErrGrantInFlight) {
			return h.renderHome(c, fiber.StatusConflict, flash{err: err.Error()})
		}
		if errors.Is(err, service.ErrBalanceReadFailed) {
			return h.renderHome(c, fiber.StatusOK, flash{err: service.ErrBalanceReadFailed.Error()})
		}
		return h.renderHome(c, fiber.StatusBadGateway, flash{err: "Failed to add $VIBZ. Please try again."})
	}
	return h.renderHome(c, fiber.StatusOK, flash{message: "Free $VIBZ added to your balance!"})
}

// BuyVibz starts a hosted checkout from the dashboard button. On failure
// the message is shown and the browser stays on the dashboard.
// POST /buy
func (h *PageHandler) BuyVibz(c *fiber.Ctx) error {
	target, err := h.checkout.Initiate(c.UserContext(), middleware.CurrentSession(c), requestOrigin(c))
	if err != nil {
		status, message := checkoutError(err)
		return h.renderHome(c, status, flash{err: message})
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

// SaveProfile handles the dashboard profile form, including an optional
// new image
// POST /account
func (h *PageHandler) SaveProfile(c *fiber.Ctx) error {
	session := middleware.CurrentSession(c)
	username := c.FormValue("username")
	wallet := c.FormValue("wallet_address")
	emailAddr := c.FormValue("email")
	update := domain.ProfileUpdate{
		Username:      &username,
		WalletAddress: &wallet,
		Email:         &emailAddr,
	}
	if err := h.profiles.ValidateUpdate(&update); err != nil {
		status, message := saveError(err)
		return h.renderHome(c, status, flash{err: message})
	}

	if fh, err := c.FormFile("avatar"); err == nil && fh.Size > 0 {
		data, err := readUpload(fh)
		if err != nil {
			return h.renderHome(c, fiber.StatusBadRequest, flash{err: "Failed to read upload"})
		}
		imageURL, err := h.profiles.UploadAvatar(c.UserContext(), session, fh.Filename, fh.Header.Get(fiber.HeaderContentType), data)
		if err != nil {
			status, message := avatarError(err)
			return h.renderHome(c, status, flash{err: message})
		}
		update.ProfileImageURL = &imageURL
	}

	profile, err := h.profiles.SaveUser(c.UserContext(), session, update)
	if err != nil {
		status, message := saveError(err)
		return h.renderHome(c, status, flash{err: message})
	}

	rememberUsername(c, h.cookies, profile)
	return h.renderHome(c, fiber.StatusOK, flash{message: "Profile saved"})
}

// Success confirms a completed checkout
// GET /success
func (h *PageHandler) Success(c *fiber.Ctx) error {
	data := h.data(c, "Payment Successful")
	data["RedirectURL"] = "/"
	data["RedirectAfter"] = confirmationRedirect
	return c.Render("success", data, "layout")
}

// Cancel confirms an abandoned checkout
// GET /cancel
func (h *PageHandler) Cancel(c *fiber.Ctx) error {
	data := h.data(c, "Payment Cancelled")
	data["RedirectURL"] = "/"
	data["RedirectAfter"] = confirmationRedirect
	return c.Render("cancel", data, "layout")
}
