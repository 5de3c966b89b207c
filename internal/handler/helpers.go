package handler

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/browser"
)

// requestOrigin extracts the origin the browser is on.
// Priority: Origin header > Referer header > Host header
func requestOrigin(c *fiber.Ctx) string {
	if origin := c.Get(fiber.HeaderOrigin); origin != "" {
		return strings.TrimRight(origin, "/")
	}

	if referer := c.Get(fiber.HeaderReferer); referer != "" {
		if parsedURL, err := url.Parse(referer); err == nil && parsedURL.Host != "" {
			return parsedURL.Scheme + "://" + parsedURL.Host
		}
	}

	if host := c.Hostname(); host != "" {
		scheme := "http"
		if c.Protocol() == "https" || c.Get(fiber.HeaderXForwardedProto) == "https" {
			scheme = "https"
		}
		return scheme + "://" + host
	}

	return ""
}

func clientInfo(c *fiber.Ctx) domain.ClientInfo {
	return domain.ClientInfo{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IPAddress: c.IP(),
	}
}

func detectClient(c *fiber.Ctx) browser.Client {
	return browser.Detect(c.Get(fiber.HeaderUserAgent), c.Get(browser.ShellHeader))
}

// shellBridge collects the messages for the embedding native app of the
// current request. It is nil outside the shell.
type shellBridge struct {
	messages []service.HostMessage
}

func newShellBridge(c *fiber.Ctx) *shellBridge {
	if !detectClient(c).Embedded {
		return nil
	}
	return &shellBridge{}
}

func (b *shellBridge) PostMessage(msg service.HostMessage) {
	b.messages = append(b.messages, msg)
}

// host returns b as a service.HostShell, keeping a nil bridge a nil
// interface.
func (b *shellBridge) host() service.HostShell {
	if b == nil {
		return nil
	}
	return b
}

// encoded returns the last message as JSON text, or "".
func (b *shellBridge) encoded() string {
	if b == nil || len(b.messages) == 0 {
		return ""
	}
	raw, err := json.Marshal(b.messages[len(b.messages)-1])
	if err != nil {
		return ""
	}
	return string(raw)
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
