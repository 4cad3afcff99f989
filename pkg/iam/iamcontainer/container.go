package iamcontainer

import (
	"context"

	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/iam/apikey/apikeyapi"
	"github.com/clavehr/identity/pkg/iam/apikey/apikeyinfra"
	"github.com/clavehr/identity/pkg/iam/apikey/apikeysrv"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/auth/authapi"
	"github.com/clavehr/identity/pkg/iam/auth/authinfra"
	"github.com/clavehr/identity/pkg/iam/auth/authsrv"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/iam/rbac/rbacapi"
	"github.com/clavehr/identity/pkg/iam/rbac/rbacinfra"
	"github.com/clavehr/identity/pkg/iam/user/userinfra"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/clavehr/identity/pkg/notifx"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// magicLinkTemplate is the email body for magic link delivery, registered on
// the notifx client at boot.
const magicLinkTemplate = `<html><body>
<p>Hello,</p>
<p>Use the link below to sign in to {{.FromName}}. It expires in {{.Minutes}} minutes and works once.</p>
<p><a href="{{.Link}}">Sign in</a></p>
<p>If you did not request this, you can ignore this email.</p>
</body></html>`

// Deps: explicit external dependencies this bounded context requires.
// No hidden globals, no ambient state; everything comes through here.
type Deps struct {
	DB     *sqlx.DB
	Redis  *redis.Client
	Cfg    *config.Config
	Mailer *notifx.Client
}

// Container is the public surface of the IAM module. Only what cmd/ or other
// modules actually need is exposed; repositories and infra stay private.
type Container struct {
	// Services
	TokenService      auth.TokenService
	CredentialService *authsrv.CredentialService
	MagicLinkService  *authsrv.MagicLinkService
	FederationService *authsrv.FederationService
	APIKeyService     *apikeysrv.APIKeyService
	Resolver          *rbac.Resolver

	// Handlers, for cmd/ route registration
	AuthHandlers   *authapi.AuthHandlers
	APIKeyHandlers *apikeyapi.APIKeyHandlers
	RoleHandlers   *rbacapi.RoleHandlers

	// Middleware
	AuthMiddleware *auth.TokenMiddleware

	// RateLimitMiddleware admits API-key traffic against per-key budgets.
	RateLimitMiddleware fiber.Handler

	// Background services
	CleanupService *authinfra.CleanupService
}

// New constructs the entire IAM dependency graph.
// Order matters: repos, infra services, domain services, handlers, middleware.
func New(deps Deps) (*Container, error) {
	logx.Info("Initializing IAM container...")

	c := &Container{}

	// Repositories
	userRepo := userinfra.NewPostgresUserRepository(deps.DB)
	linkRepo := userinfra.NewPostgresOAuthLinkRepository(deps.DB)
	tokenRepo := authinfra.NewPostgresTokenRepository(deps.DB)
	magicLinkRepo := authinfra.NewPostgresMagicLinkRepository(deps.DB)
	apiKeyRepo := apikeyinfra.NewPostgresAPIKeyRepository(deps.DB)
	assignmentRepo := rbacinfra.NewPostgresAssignmentRepository(deps.DB)

	// Infrastructure services
	var stateManager auth.StateManager
	if deps.Cfg.OAuth.StateManager == "redis" {
		stateManager = authinfra.NewRedisStateManager(deps.Redis, deps.Cfg.OAuth.StateTTL)
		logx.Info("Using Redis state manager for OAuth")
	} else {
		stateManager = auth.NewMemoryStateManager(deps.Cfg.OAuth.StateTTL)
		logx.Warn("Using in-memory state manager (single instance only)")
	}

	tokenService, err := auth.NewJWTService(
		deps.Cfg.JWT.Secret,
		deps.Cfg.JWT.Issuer,
		deps.Cfg.JWT.AccessTokenTTL,
		deps.Cfg.JWT.RefreshTokenTTL,
	)
	if err != nil {
		return nil, err
	}
	c.TokenService = tokenService

	auditService := authinfra.NewLogxAuditService()

	// Domain services
	c.Resolver = rbac.NewResolver(assignmentRepo, rbac.DefaultRoleTable())

	c.CredentialService = authsrv.NewCredentialService(
		tokenService,
		tokenRepo,
		userRepo,
		c.Resolver,
		auditService,
	)

	if err := deps.Mailer.RegisterTemplate(authsrv.MagicLinkTemplate, magicLinkTemplate); err != nil {
		return nil, err
	}
	c.MagicLinkService = authsrv.NewMagicLinkService(
		magicLinkRepo,
		userRepo,
		c.CredentialService,
		deps.Mailer,
		auditService,
		authsrv.MagicLinkConfig{
			TTL:         deps.Cfg.MagicLink.TTL,
			FrontendURL: deps.Cfg.App.FrontendURL,
			LinkPath:    deps.Cfg.MagicLink.LinkPath,
			FromAddress: deps.Cfg.Notifx.FromAddress,
			FromName:    deps.Cfg.MagicLink.FromName,
		},
	)

	// OAuth providers
	httpClient := auth.NewProviderHTTPClient(deps.Cfg.OAuth.HTTPTimeout, deps.Cfg.OAuth.MaxRetries)
	var providers []auth.ProviderClient
	if deps.Cfg.OAuth.Google.Enabled {
		providers = append(providers, auth.NewGoogleProvider(deps.Cfg.OAuth.Google, httpClient))
		logx.Info("Google OAuth enabled")
	}
	if deps.Cfg.OAuth.Microsoft.Enabled {
		providers = append(providers, auth.NewMicrosoftProvider(deps.Cfg.OAuth.Microsoft, httpClient))
		logx.Info("Microsoft OAuth enabled")
	}
	if deps.Cfg.OAuth.LinkedIn.Enabled {
		providers = append(providers, auth.NewLinkedInProvider(deps.Cfg.OAuth.LinkedIn, httpClient))
		logx.Info("LinkedIn OAuth enabled")
	}

	c.FederationService = authsrv.NewFederationService(
		providers,
		stateManager,
		userRepo,
		linkRepo,
		c.CredentialService,
		auditService,
	)

	c.APIKeyService = apikeysrv.NewAPIKeyService(
		apiKeyRepo,
		userRepo,
		c.Resolver,
		deps.Cfg.APIKey.MaxKeysPerUser,
	)

	// Middleware
	c.AuthMiddleware = auth.NewAuthMiddleware(tokenService, c.APIKeyService)

	// Handlers
	c.AuthHandlers = authapi.NewAuthHandlers(
		c.FederationService,
		c.MagicLinkService,
		c.CredentialService,
		c.AuthMiddleware,
		auditService,
	)
	c.APIKeyHandlers = apikeyapi.NewAPIKeyHandlers(c.APIKeyService)
	c.RoleHandlers = rbacapi.NewRoleHandlers(c.Resolver, assignmentRepo)

	// Rate limiting for API-key traffic
	rateLimiter := apikeyinfra.NewRedisRateLimiter(deps.Redis)
	c.RateLimitMiddleware = apikeyapi.RateLimit(rateLimiter, apiKeyRepo)

	// Background services
	c.CleanupService = authinfra.NewCleanupService(tokenRepo, magicLinkRepo, deps.Cfg.Cleanup.Interval)

	logx.Info("IAM container initialized")
	return c, nil
}

// StartBackgroundServices starts IAM background workers.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	go c.CleanupService.Run(ctx)
	logx.Info("IAM cleanup service started")
}
