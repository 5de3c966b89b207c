package cookiestore

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const jarLocalsKey = "cookiestore.jar"

type fiberJar struct {
	c       *fiber.Ctx
	written map[string]*http.Cookie
}

// FiberJar returns the Jar of the request. Repeated calls within one
// request share the same jar, so a cookie written earlier in the request is
// visible to later reads.
func FiberJar(c *fiber.Ctx) Jar {
	if jar, ok := c.Locals(jarLocalsKey).(*fiberJar); ok {
		return jar
	}
	jar := &fiberJar{c: c, written: make(map[string]*http.Cookie)}
	c.Locals(jarLocalsKey, jar)
	return jar
}

func (j *fiberJar) Cookie(name string) (string, bool) {
	if written, ok := j.written[name]; ok {
		if written.MaxAge < 0 {
			return "", false
		}
		return written.Value, true
	}
	value := j.c.Cookies(name)
	return value, value != ""
}

// SetCookie appends a Set-Cookie header. Fiber's own Cookie helper replaces
// earlier cookies of the same name, which would collapse the removal
// variants into one.
func (j *fiberJar) SetCookie(cookie *http.Cookie) {
	j.written[cookie.Name] = cookie
	j.c.Response().Header.Add(fiber.HeaderSetCookie, cookie.String())
}
