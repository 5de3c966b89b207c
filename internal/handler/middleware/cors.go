package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/MatsTornblom/Vibzprofile/pkg/browser"
)

// CORSMiddleware allows the sibling subdomains to call the API with their
// cookies. allowedOrigins is a comma separated list and may contain
// wildcard subdomains such as https://*.vibz.world.
func CORSMiddleware(allowedOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE",
		AllowHeaders:     "Content-Type,Authorization," + browser.ShellHeader,
		AllowCredentials: true,
	})
}
