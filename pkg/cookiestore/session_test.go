package cookiestore

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
)

func TestEncodeDecodeSession(t *testing.T) {
	session := &domain.AuthSession{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		User:         domain.SessionUser{ID: uuid.New(), Email: "a@vibz.world"},
	}

	encoded, err := EncodeSession(session)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "base64-"))

	decoded, err := DecodeSession(encoded)
	require.NoError(t, err)
	assert.Equal(t, session.AccessToken, decoded.AccessToken)
	assert.Equal(t, session.User, decoded.User)
	assert.True(t, session.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestDecodeSession_Malformed(t *testing.T) {
	for _, value := range []string{"", "base64-", "plain", "base64-!!!", "base64-e30"} {
		_, err := DecodeSession(value)
		assert.ErrorIs(t, err, ErrMalformedSession, value)
	}
}

func TestFiberJar(t *testing.T) {
	store := New(".vibz.world")
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		jar := FiberJar(c)

		before, ok := store.Get(jar, "existing")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		store.Set(jar, "fresh", "value")
		fresh, _ := store.Get(FiberJar(c), "fresh")

		store.Remove(jar, "existing")
		_, stillThere := store.Get(FiberJar(c), "existing")

		return c.JSON(fiber.Map{"before": before, "fresh": fresh, "still_there": stillThere})
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "existing=old")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"before":"old","fresh":"value","still_there":false}`, string(body))

	setCookies := resp.Header.Values("Set-Cookie")
	require.Len(t, setCookies, 4)
	assert.Contains(t, setCookies[0], "fresh=value")
	assert.Contains(t, setCookies[0], "Domain=vibz.world")
	assert.Contains(t, setCookies[0], "SameSite=Lax")
	for _, header := range setCookies[1:] {
		assert.True(t, strings.HasPrefix(header, "existing="), header)
		assert.Contains(t, header, "Max-Age=0")
	}
}
