package auth

import (
	"context"
	"strings"

	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// APIKeyAuthenticator verifies a raw API key and produces the caller's
// AuthContext. Implemented by the apikey service; declared here so the
// middleware does not depend on that package.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey, clientIP string) (*kernel.AuthContext, error)
}

// APIKeyPrefix marks an API key presented through a Bearer scheme.
const APIKeyPrefix = "xapi-"

// TokenMiddleware authenticates requests with either a bearer access token or
// an API key and installs a kernel.AuthContext for downstream handlers. Every
// credential method ends up with the same context shape.
type TokenMiddleware struct {
	tokenService TokenService
	apiKeys      APIKeyAuthenticator
}

// NewAuthMiddleware creates the middleware. apiKeys may be nil when API key
// auth is not mounted.
func NewAuthMiddleware(tokenService TokenService, apiKeys APIKeyAuthenticator) *TokenMiddleware {
	return &TokenMiddleware{
		tokenService: tokenService,
		apiKeys:      apiKeys,
	}
}

// Authenticate validates the presented credential. Accepted forms:
// "Authorization: Bearer <jwt>", "Authorization: Bearer xapi-...",
// "Authorization: ApiKey xapi-..." and the "X-API-Key" header.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		credential, isAPIKey := extractCredential(c)
		if credential == "" {
			return iam.ErrUnauthorized()
		}

		if isAPIKey || strings.HasPrefix(credential, APIKeyPrefix) {
			if am.apiKeys == nil {
				return iam.ErrInvalidCredentials()
			}
			authCtx, err := am.apiKeys.Authenticate(c.UserContext(), credential, c.IP())
			if err != nil {
				return err
			}
			c.Locals(string(kernel.AuthContextKey), authCtx)
			return c.Next()
		}

		claims, err := am.tokenService.ValidateAccessToken(credential)
		if err != nil {
			return err
		}

		authCtx := &kernel.AuthContext{
			UserID:         claims.UserID,
			OrganizationID: claims.OrganizationID,
			Email:          claims.Email,
			Role:           claims.Role,
			Roles:          claims.Roles,
			Status:         claims.Status,
			IsAPIKey:       false,
		}
		c.Locals(string(kernel.AuthContextKey), authCtx)
		return c.Next()
	}
}

// RequireRole rejects requests whose context does not carry the role.
func (am *TokenMiddleware) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx, err := FromFiberContext(c)
		if err != nil {
			return err
		}
		if !authCtx.HasRole(role) {
			return iam.ErrAccessDenied().WithDetail("required_role", role)
		}
		return c.Next()
	}
}

// FromFiberContext retrieves the AuthContext installed by Authenticate.
func FromFiberContext(c *fiber.Ctx) (*kernel.AuthContext, error) {
	authCtx, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	if !ok || authCtx == nil || !authCtx.IsValid() {
		return nil, iam.ErrUnauthorized()
	}
	return authCtx, nil
}

// extractCredential pulls the credential off the request. The second return
// reports when the presentation itself declares an API key.
func extractCredential(c *fiber.Ctx) (string, bool) {
	if key := c.Get("X-API-Key"); key != "" {
		return key, true
	}

	header := c.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	switch parts[0] {
	case "Bearer":
		return parts[1], false
	case "ApiKey":
		return parts[1], true
	}
	return "", false
}
