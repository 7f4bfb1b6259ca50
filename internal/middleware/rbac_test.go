package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", "Admin")
		return c.Next()
	})
	app.Use(RequireRole("admin"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", "player")
		return c.Next()
	})
	app.Use(RequireRole("admin"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminOnlyRequiresAdminToken(t *testing.T) {
	const secret = "test-secret"
	app := fiber.New()
	app.Post("/rescore", append(AdminOnly(secret), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})...)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: fiber.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "ops", "role": "admin"}), status: fiber.StatusUnauthorized},
		{name: "not admin", header: "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "alice", "role": "player"}), status: fiber.StatusForbidden},
		{name: "expired", header: "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "ops", "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}), status: fiber.StatusUnauthorized},
		{name: "admin", header: "bearer " + signToken(t, secret, jwt.MapClaims{"sub": "ops", "roles": []string{"Admin"}}), status: fiber.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rescore", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAdminOnlyWithoutSecretIsOpen(t *testing.T) {
	require.Empty(t, AdminOnly("  "))
}
