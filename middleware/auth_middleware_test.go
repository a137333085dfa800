package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/tutor_marketplace/models"
)

const secret = "test-secret"

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", Protected(secret), func(c *fiber.Ctx) error {
		id, err := UserID(c)
		if err != nil {
			return err
		}
		return c.SendString(id.String() + ":" + string(Role(c)))
	})
	app.Get("/admin", Protected(secret), AdminRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func token(t *testing.T, role models.Role, ttl time.Duration) (string, uuid.UUID) {
	t.Helper()
	u := &models.User{ID: uuid.New(), Email: "u@example.com", Role: role}
	tok, err := IssueToken(secret, u, ttl, time.Now())
	require.NoError(t, err)
	return tok, u.ID
}

func TestProtectedAcceptsIssuedToken(t *testing.T) {
	app := newApp()
	tok, id := token(t, models.RoleStudent, time.Hour)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, id.String()+":student", string(body))
}

func TestProtectedRejectsMissingAndExpired(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	tok, _ := token(t, models.RoleStudent, -time.Minute)
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRequired(t *testing.T) {
	app := newApp()
	for role, want := range map[models.Role]int{
		models.RoleAdmin:   fiber.StatusNoContent,
		models.RoleTeacher: fiber.StatusForbidden,
	} {
		tok, _ := token(t, role, time.Hour)
		req := httptest.NewRequest("GET", "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, role)
	}
}
