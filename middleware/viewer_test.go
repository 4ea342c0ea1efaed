package middleware_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-platform/apperr"
	"arena-platform/middleware"
	"arena-platform/models"
)

const baseHostname = ".t.arena.dev"

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv, &priv.PublicKey
}

func signToken(t *testing.T, priv *rsa.PrivateKey, subject, role string, audience []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"aud":  audience,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
	require.NoError(t, err)
	return token
}

func fakeLookup(t *testing.T) middleware.TenantLookup {
	t.Helper()
	return func(_ context.Context, name string) (*models.Tenant, error) {
		if name == "acme" {
			return &models.Tenant{ID: 42, Name: "acme", DisplayName: "Acme Arena"}, nil
		}
		return nil, apperr.NotFound("tenant not found: " + name)
	}
}

func newViewerApp(t *testing.T, pub *rsa.PublicKey) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			ae := apperr.From(err)
			return c.Status(ae.Status).JSON(fiber.Map{"status": false, "message": ae.PublicMessage()})
		},
	})
	app.Use(middleware.ViewerResolver(pub, baseHostname, fakeLookup(t)))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		v := middleware.GetViewer(c)
		return c.JSON(fiber.Map{
			"role":      v.Role,
			"subject":   v.Subject,
			"tenant":    v.TenantName,
			"tenant_id": v.TenantID,
		})
	})
	app.Get("/organizer-only",
		middleware.RequireRole(middleware.RoleOrganizer),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })
	return app
}

func request(host, path, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "http://"+host+path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	return req
}

func TestViewerResolverValidToken(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "player-1", "player", []string{"acme"})
	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestViewerResolverBearerFallback(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "player-1", "player", []string{"acme"})
	req := request("acme.t.arena.dev", "/whoami", "")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestViewerResolverMissingToken(t *testing.T) {
	_, pub := testKeys(t)
	app := newViewerApp(t, pub)

	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverWrongKey(t *testing.T) {
	otherPriv, _ := testKeys(t)
	_, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, otherPriv, "player-1", "player", []string{"acme"})
	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverAudienceMismatch(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	// token issued for another tenant replayed against acme's host
	token := signToken(t, priv, "player-1", "player", []string{"rival"})
	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverMultipleAudiences(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "player-1", "player", []string{"acme", "rival"})
	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverUnknownRole(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "player-1", "superuser", []string{"acme"})
	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverMissingSubject(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "", "player", []string{"acme"})
	resp, err := app.Test(request("acme.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverUnknownTenant(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "player-1", "player", []string{"ghost"})
	resp, err := app.Test(request("ghost.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestViewerResolverAdminTenant(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	// the operator tenant is synthetic, no catalog lookup happens
	token := signToken(t, priv, "admin-1", "admin", []string{"admin"})
	resp, err := app.Test(request("admin.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestViewerResolverAdminTenantRejectsOtherRoles(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "player-1", "player", []string{"admin"})
	resp, err := app.Test(request("admin.t.arena.dev", "/whoami", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	priv, pub := testKeys(t)
	app := newViewerApp(t, pub)

	token := signToken(t, priv, "org-1", "organizer", []string{"acme"})
	resp, err := app.Test(request("acme.t.arena.dev", "/organizer-only", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token = signToken(t, priv, "player-1", "player", []string{"acme"})
	resp, err = app.Test(request("acme.t.arena.dev", "/organizer-only", token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
