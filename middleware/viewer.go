package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"arena-platform/apperr"
	"arena-platform/models"
)

// SessionCookieName is the transport slot the signed token travels in. A
// bearer Authorization header is accepted as a fallback.
const SessionCookieName = "arena_session"

const localsViewerKey = "viewer"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RolePlayer    Role = "player"
	RoleNone      Role = "none"
)

// Viewer is the authenticated identity for the current request,
// reconstructed per request from the signed token and the tenant resolved
// from the request host. It is never persisted.
type Viewer struct {
	Role       Role
	Subject    string
	TenantName string
	TenantID   uint64
}

// TenantLookup resolves a tenant name against the Global Catalog.
type TenantLookup func(ctx context.Context, name string) (*models.Tenant, error)

// LoadVerifyKey reads the PEM-encoded public key used for signature
// verification. The key is loaded once at startup; a missing or broken
// key file is a configuration error, not a request error.
func LoadVerifyKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

type viewerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ViewerResolver gates every tenant-scoped route: it verifies the token,
// resolves the tenant from the host and stores the Viewer in the request
// locals. Any identity failure is Unauthorized.
func ViewerResolver(key *rsa.PublicKey, baseHostname string, lookup TenantLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := resolveViewer(c, key, baseHostname, lookup)
		if err != nil {
			return err
		}
		SetViewer(c, v)
		return c.Next()
	}
}

func resolveViewer(c *fiber.Ctx, key *rsa.PublicKey, baseHostname string, lookup TenantLookup) (*Viewer, error) {
	tokenStr := c.Cookies(SessionCookieName)
	if tokenStr == "" {
		auth := c.Get(fiber.HeaderAuthorization)
		if strings.HasPrefix(auth, "Bearer ") {
			tokenStr = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if tokenStr == "" {
		return nil, apperr.Unauthorized("missing session token")
	}

	claims := &viewerClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, apperr.Unauthorized("invalid session token")
	}

	if claims.Subject == "" {
		return nil, apperr.Unauthorized("token has no subject")
	}
	role := Role(claims.Role)
	switch role {
	case RoleAdmin, RoleOrganizer, RolePlayer:
	default:
		return nil, apperr.Unauthorized("token has unknown role")
	}
	if len(claims.Audience) != 1 {
		return nil, apperr.Unauthorized("token must carry exactly one audience")
	}

	// The token is only valid for the tenant it was issued to. A token
	// replayed against another tenant's subdomain fails here.
	tenantName := strings.TrimSuffix(c.Hostname(), baseHostname)
	if tenantName != claims.Audience[0] {
		return nil, apperr.Unauthorized("token audience does not match request tenant")
	}

	if tenantName == models.AdminTenantName {
		if role != RoleAdmin {
			return nil, apperr.Unauthorized("operator tenant requires the admin role")
		}
		return &Viewer{Role: role, Subject: claims.Subject, TenantName: models.AdminTenantName}, nil
	}

	tenant, err := lookup(c.UserContext(), tenantName)
	if err != nil {
		if apperr.Is(err, http.StatusNotFound) {
			return nil, apperr.Unauthorized("unknown tenant: " + tenantName)
		}
		return nil, err
	}

	return &Viewer{
		Role:       role,
		Subject:    claims.Subject,
		TenantName: tenant.Name,
		TenantID:   tenant.ID,
	}, nil
}

// SetViewer stores the viewer for the current request.
func SetViewer(c *fiber.Ctx, v *Viewer) {
	c.Locals(localsViewerKey, v)
}

// GetViewer returns the Viewer stored by ViewerResolver.
func GetViewer(c *fiber.Ctx) *Viewer {
	if v, ok := c.Locals(localsViewerKey).(*Viewer); ok {
		return v
	}
	return &Viewer{Role: RoleNone}
}

// RequireRole rejects requests whose viewer has none of the given roles.
func RequireRole(roles ...Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v := GetViewer(c)
		for _, r := range roles {
			if v.Role == r {
				return c.Next()
			}
		}
		return apperr.Forbidden("this role is not permitted")
	}
}
