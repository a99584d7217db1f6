package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// CasesHandler serves the customer-facing case endpoints.
type CasesHandler struct {
	cases    *service.CaseService
	messages *service.MessageService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases *service.CaseService, messages *service.MessageService) *CasesHandler {
	return &CasesHandler{cases: cases, messages: messages}
}

// Create POST /cases.
func (h *CasesHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	created, err := h.cases.CreateCase(c.UserContext(), principal.SubjectID(), service.CaseCreateInput{
		Department:  req.Department,
		Description: req.Description,
		Location:    req.Location,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": toCaseResponse(created)})
}

// List GET /cases.
func (h *CasesHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseCaseListFilter(c)
	if err != nil {
		return err
	}
	result, err := h.cases.ListCases(c.UserContext(), principal.Identity(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toCaseResponses(result)})
}

// Get GET /cases/:id.
func (h *CasesHandler) Get(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	found, err := h.cases.GetCase(c.UserContext(), principal.Identity(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toCaseResponse(found)})
}

// History GET /cases/:id/messages.
func (h *CasesHandler) History(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	msgs, err := h.messages.History(c.UserContext(), principal.Identity(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toMessageResponses(msgs)})
}

// SendMessage POST /cases/:id/messages.
func (h *CasesHandler) SendMessage(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.AppendMessage(c.UserContext(), principal.Identity(), c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": toMessageResponse(msg)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseCaseListFilter(c *fiber.Ctx) (service.CaseListFilter, error) {
	filter := service.CaseListFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.CaseStatus(strings.TrimSpace(part))
			switch status {
			case domain.CaseStatusPending, domain.CaseStatusActive, domain.CaseStatusResolved, domain.CaseStatusRejected:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
			}
		}
	}
	if dep := c.Query("department"); dep != "" {
		filter.Department = &dep
	}
	if customerID := c.Query("customer_id"); customerID != "" {
		filter.CustomerID = &customerID
	}
	if agentID := c.Query("agent_id"); agentID != "" {
		filter.AgentID = &agentID
	}
	return filter, nil
}

func toCaseResponse(c *domain.Case) dto.CaseResponse {
	return dto.CaseResponse{
		ID:              c.ID,
		CustomerID:      c.CustomerID,
		AssignedAgentID: c.AssignedAgentID,
		Department:      c.Department,
		Description:     c.Description,
		Location:        c.Location,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func toCaseResponses(cases []domain.Case) []dto.CaseResponse {
	out := make([]dto.CaseResponse, 0, len(cases))
	for i := range cases {
		out = append(out, toCaseResponse(&cases[i]))
	}
	return out
}

func toMessageResponse(m *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:        m.ID,
		CaseID:    m.CaseID,
		Seq:       m.Seq,
		Sender:    m.Sender,
		SenderID:  m.SenderID,
		Body:      m.Body,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}

func toMessageResponses(msgs []domain.Message) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageResponse(&msgs[i]))
	}
	return out
}
