package apikeyapi

import (
	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/apikey"
	"github.com/clavehr/identity/pkg/iam/apikey/apikeysrv"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/gofiber/fiber/v2"
)

// APIKeyHandlers exposes key management under /api/v1/api-keys. Every route
// requires an authenticated principal; keys are always owner-scoped.
type APIKeyHandlers struct {
	service *apikeysrv.APIKeyService
}

// NewAPIKeyHandlers creates the handler set.
func NewAPIKeyHandlers(service *apikeysrv.APIKeyService) *APIKeyHandlers {
	return &APIKeyHandlers{service: service}
}

// RegisterRoutes mounts the management endpoints behind the given middleware.
func (h *APIKeyHandlers) RegisterRoutes(app *fiber.App, middleware ...fiber.Handler) {
	keys := app.Group("/api/v1/api-keys", middleware...)

	keys.Post("/", h.create)
	keys.Get("/", h.list)
	keys.Get("/:id", h.get)
	keys.Post("/:id/deactivate", h.deactivate)
	keys.Delete("/:id", h.delete)
}

func (h *APIKeyHandlers) create(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	var req apikey.CreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation)
	}

	resp, err := h.service.CreateAPIKey(c.UserContext(), authCtx.UserID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *APIKeyHandlers) list(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	keys, err := h.service.ListAPIKeys(c.UserContext(), authCtx.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"api_keys": keys, "total": len(keys)})
}

func (h *APIKeyHandlers) get(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	key, err := h.service.GetAPIKey(c.UserContext(), c.Params("id"), authCtx.UserID)
	if err != nil {
		return err
	}
	return c.JSON(key)
}

func (h *APIKeyHandlers) deactivate(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	if err := h.service.DeactivateAPIKey(c.UserContext(), c.Params("id"), authCtx.UserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "API key deactivated"})
}

func (h *APIKeyHandlers) delete(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteAPIKey(c.UserContext(), c.Params("id"), authCtx.UserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "API key deleted"})
}

// RateLimit admits API-key requests against the key's per-minute budget.
// Bearer-token requests pass through untouched.
func RateLimit(limiter apikey.RateLimiter, repo apikey.APIKeyRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx, err := auth.FromFiberContext(c)
		if err != nil || !authCtx.IsAPIKey {
			return c.Next()
		}

		key, err := repo.FindByID(c.UserContext(), authCtx.APIKeyID)
		if err != nil || key == nil {
			return c.Next()
		}
		allowed, err := limiter.Allow(c.UserContext(), key.ID, key.RateLimitPerMinute)
		if err != nil {
			return c.Next()
		}
		if !allowed {
			return apikey.ErrRateLimited().WithDetail("limit_per_minute", key.RateLimitPerMinute)
		}
		return c.Next()
	}
}
