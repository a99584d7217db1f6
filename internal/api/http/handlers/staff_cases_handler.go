package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// StaffCasesHandler serves the staff-facing lifecycle actions.
type StaffCasesHandler struct {
	cases *service.CaseService
}

// NewStaffCasesHandler constructs handler.
func NewStaffCasesHandler(cases *service.CaseService) *StaffCasesHandler {
	return &StaffCasesHandler{cases: cases}
}

// Assign POST /staff/cases/:id/assign (admin only).
func (h *StaffCasesHandler) Assign(c *fiber.Ctx) error {
	staff, err := requireStaffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	updated, err := h.cases.AssignAgent(c.UserContext(), staff, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toCaseResponse(updated)})
}

// Accept POST /staff/cases/:id/accept.
func (h *StaffCasesHandler) Accept(c *fiber.Ctx) error {
	staff, err := requireStaffPrincipal(c)
	if err != nil {
		return err
	}
	updated, err := h.cases.AcceptCase(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toCaseResponse(updated)})
}

// Reject POST /staff/cases/:id/reject.
func (h *StaffCasesHandler) Reject(c *fiber.Ctx) error {
	staff, err := requireStaffPrincipal(c)
	if err != nil {
		return err
	}
	updated, err := h.cases.RejectCase(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toCaseResponse(updated)})
}

// Resolve POST /staff/cases/:id/resolve.
func (h *StaffCasesHandler) Resolve(c *fiber.Ctx) error {
	staff, err := requireStaffPrincipal(c)
	if err != nil {
		return err
	}
	updated, err := h.cases.ResolveCase(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toCaseResponse(updated)})
}

func requireStaffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, apperrors.NewUnauthorized("staff authentication required")
	}
	return principal.Staff, nil
}
