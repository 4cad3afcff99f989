package rbacapi

import (
	"time"

	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/iam/auth"
	"github.com/clavehr/identity/pkg/iam/rbac"
	"github.com/clavehr/identity/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// RoleHandlers exposes role assignment under /api/v1/roles. Assignments are
// guarded by the resolver's CanAssign rule, never by a raw role check.
type RoleHandlers struct {
	resolver *rbac.Resolver
	repo     rbac.AssignmentRepository
}

// NewRoleHandlers creates the handler set.
func NewRoleHandlers(resolver *rbac.Resolver, repo rbac.AssignmentRepository) *RoleHandlers {
	return &RoleHandlers{resolver: resolver, repo: repo}
}

// RegisterRoutes mounts the role endpoints behind the given middleware.
func (h *RoleHandlers) RegisterRoutes(app *fiber.App, middleware ...fiber.Handler) {
	roles := app.Group("/api/v1/roles", middleware...)

	roles.Get("/assignable", h.assignable)
	roles.Post("/assign", h.assign)
	roles.Post("/remove", h.remove)
}

func (h *RoleHandlers) assignable(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	orgID := orgScope(c.Query("organization_id"), authCtx)
	roles, err := h.resolver.AssignableRoles(c.UserContext(), authCtx.UserID, orgID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"roles": roles})
}

type assignmentRequest struct {
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func (h *RoleHandlers) assign(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	var req assignmentRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.Role == "" {
		return errx.New("user_id and role are required", errx.TypeValidation)
	}

	target := rbac.RoleName(req.Role)
	orgID := orgScope(req.OrganizationID, authCtx)

	allowed, err := h.resolver.CanAssign(c.UserContext(), authCtx.UserID, target, orgID)
	if err != nil {
		return err
	}
	if !allowed {
		return rbac.ErrCannotAssignRole().WithDetail("role", req.Role)
	}

	assignment := rbac.RoleAssignment{
		UserID:         kernel.NewUserID(req.UserID),
		RoleName:       target,
		OrganizationID: orgID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.repo.Assign(c.UserContext(), assignment); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(assignment)
}

func (h *RoleHandlers) remove(c *fiber.Ctx) error {
	authCtx, err := auth.FromFiberContext(c)
	if err != nil {
		return err
	}

	var req assignmentRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.Role == "" {
		return errx.New("user_id and role are required", errx.TypeValidation)
	}

	target := rbac.RoleName(req.Role)
	orgID := orgScope(req.OrganizationID, authCtx)

	// Removing a role takes the same privilege as granting it.
	allowed, err := h.resolver.CanAssign(c.UserContext(), authCtx.UserID, target, orgID)
	if err != nil {
		return err
	}
	if !allowed {
		return rbac.ErrCannotAssignRole().WithDetail("role", req.Role)
	}

	if err := h.repo.Remove(c.UserContext(), kernel.NewUserID(req.UserID), target, orgID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Role removed"})
}

// orgScope resolves the organization scope of a request: an explicit id wins,
// otherwise the caller's own organization.
func orgScope(explicit string, authCtx *kernel.AuthContext) *kernel.OrgID {
	if explicit != "" {
		id := kernel.NewOrgID(explicit)
		return &id
	}
	return authCtx.OrganizationID
}
