package authapi

import (
	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/auth/authsrv"
	"github.com/gofiber/fiber/v2"
)

// AuthHandlers exposes the authentication surface: OAuth federation, magic
// links, refresh and session management.
type AuthHandlers struct {
	federation  *authsrv.FederationService
	magicLinks  *authsrv.MagicLinkService
	credentials *authsrv.CredentialService
	middleware  *auth.TokenMiddleware
	audit       auth.AuditService
}

// NewAuthHandlers creates the handler set.
func NewAuthHandlers(
	federation *authsrv.FederationService,
	magicLinks *authsrv.MagicLinkService,
	credentials *authsrv.CredentialService,
	middleware *auth.TokenMiddleware,
	audit auth.AuditService,
) *AuthHandlers {
	return &AuthHandlers{
		federation:  federation,
		magicLinks:  magicLinks,
		credentials: credentials,
		middleware:  middleware,
		audit:       audit,
	}
}

// RegisterRoutes mounts the auth endpoints on the app.
func (h *AuthHandlers) RegisterRoutes(app *fiber.App) {
	authGroup := app.Group("/auth")

	authGroup.Get("/providers", h.listProviders)
	authGroup.Get("/oauth/:provider/authorize", h.oauthAuthorize)
	authGroup.Get("/oauth/:provider/callback", h.oauthCallback)

	authGroup.Post("/magic-link/request", h.requestMagicLink)
	authGroup.Post("/magic-link/verify", h.verifyMagicLink)

	authGroup.Post("/refresh", h.refresh)
	authGroup.Post("/logout", h.logout)

	protected := authGroup.Use(h.middleware.Authenticate())
	protected.Post("/logout-all", h.logoutAll)
	protected.Get("/me", h.me)
}

func (h *AuthHandlers) listProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": h.federation.Providers()})
}

func (h *AuthHandlers) oauthAuthorize(c *fiber.Ctx) error {
	provider := iam.OAuthProvider(c.Params("provider"))
	redirectURI := c.Query("redirect_uri")

	url, err := h.federation.BeginFederation(c.UserContext(), provider, redirectURI)
	if err != nil {
		return err
	}
	if c.QueryBool("redirect", true) {
		return c.Redirect(url, fiber.StatusTemporaryRedirect)
	}
	return c.JSON(fiber.Map{"authorization_url": url})
}

func (h *AuthHandlers) oauthCallback(c *fiber.Ctx) error {
	provider := iam.OAuthProvider(c.Params("provider"))
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return errx.New("missing code or state", errx.TypeValidation)
	}

	creds, err := h.federation.CompleteFederation(c.UserContext(), provider, code, state, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(creds)
}

type magicLinkRequest struct {
	Email       string `json:"email"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

func (h *AuthHandlers) requestMagicLink(c *fiber.Ctx) error {
	var req magicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation)
	}
	if err := h.magicLinks.RequestLink(c.UserContext(), req.Email, req.RedirectURI, c.IP()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "If the address is valid, a sign-in link is on its way."})
}

type magicLinkVerifyRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandlers) verifyMagicLink(c *fiber.Ctx) error {
	var req magicLinkVerifyRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return errx.New("token is required", errx.TypeValidation)
	}

	creds, err := h.magicLinks.Verify(c.UserContext(), req.Token, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(creds)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandlers) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return errx.New("refresh_token is required", errx.TypeValidation)
	}

	creds, err := h.credentials.Refresh(c.UserContext(), req.RefreshToken, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(creds)
}

// logout revokes the presented refresh token. It deliberately works without an
// access token so a client with an expired session can still log out, and it
// is idempotent.
func (h *AuthHandlers) logout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return errx.New("refresh_token is required", errx.TypeValidation)
	}

	if err := h.credentials.Revoke(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func (h *AuthHandlers) logoutAll(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	if err := h.credentials.RevokeAll(c.UserContext(), authCtx.UserID); err != nil {
		return err
	}
	h.audit.LogLogout(c.UserContext(), authCtx.UserID, c.IP(), true)
	return c.JSON(fiber.Map{"message": "Logged out everywhere"})
}

func (h *AuthHandlers) me(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}
	return c.JSON(authCtx)
}
