package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// CaseService is the case lifecycle manager: the only writer of case status
// and assignment. Transitions are applied as compare-and-swap against the
// persisted status, so a concurrent transition surfaces as InvalidTransition
// instead of a silent overwrite.
type CaseService struct {
	cases      repository.CaseRepository
	staff      repository.StaffRepository
	dispatcher events.Dispatcher
}

// CaseDependencies bundles repositories for the lifecycle manager.
type CaseDependencies struct {
	CaseRepo   repository.CaseRepository
	StaffRepo  repository.StaffRepository
	Dispatcher events.Dispatcher
}

// CaseCreateInput describes case submission payload.
type CaseCreateInput struct {
	Department  string
	Description string
	Location    string
}

// CaseListFilter describes listing filters. Participant scoping is applied
// from the caller identity; supervisory roles may additionally filter by an
// explicit participant.
type CaseListFilter struct {
	Statuses   []domain.CaseStatus
	Department *string
	CustomerID *string
	AgentID    *string
	Limit      int
	Offset     int
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	return &CaseService{
		cases:      deps.CaseRepo,
		staff:      deps.StaffRepo,
		dispatcher: deps.Dispatcher,
	}
}

// CreateCase files a new case for a customer. Cases start pending with no
// assigned agent.
func (s *CaseService) CreateCase(ctx context.Context, customerID string, input CaseCreateInput) (*domain.Case, error) {
	if strings.TrimSpace(input.Department) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, apperrors.NewValidationError("department and description required", nil)
	}

	c := &domain.Case{
		CustomerID:  customerID,
		Department:  strings.TrimSpace(input.Department),
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		Status:      domain.CaseStatusPending,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:   events.EventCaseCreated,
		CaseID: c.ID,
		Actor:  userActor(customerID),
		Payload: events.CaseCreatedPayload{
			CustomerID: c.CustomerID,
			Department: c.Department,
		},
	})
	return c, nil
}

// AssignAgent sets the assigned agent (admin operation). A pending case
// becomes active; re-assignment while active keeps the status. Assigning a
// terminal case fails with InvalidTransition.
func (s *CaseService) AssignAgent(ctx context.Context, actor *domain.StaffMember, caseID, agentID string) (*domain.Case, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if actor.Role != domain.StaffRoleAdmin {
		return nil, apperrors.NewNotAuthorized("admin role required for assignment")
	}

	agent, err := s.staff.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !agent.Active {
		return nil, apperrors.NewValidationError("assignee inactive", map[string]any{"staff_id": agentID})
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, apperrors.NewInvalidTransition("cannot assign a closed case", transitionDetails(c.Status, domain.CaseStatusActive))
	}

	reassigned := c.Status == domain.CaseStatusActive
	updated, err := s.cases.CompareAndSetStatus(ctx, caseID, c.Status, domain.CaseStatusActive, &agent.ID)
	if err != nil {
		return nil, s.mapTransitionError(err, c.Status, domain.CaseStatusActive)
	}

	s.publishEvent(ctx, events.Event{
		Type:   events.EventCaseAssigned,
		CaseID: updated.ID,
		Actor:  staffActor(actor.ID),
		Payload: events.CaseAssignedPayload{
			CustomerID: updated.CustomerID,
			AgentID:    agent.ID,
			Reassigned: reassigned,
		},
	})
	return updated, nil
}

// AcceptCase lets an agent take a pending case, assigning it to themselves.
func (s *CaseService) AcceptCase(ctx context.Context, actor *domain.StaffMember, caseID string) (*domain.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CaseStatusPending {
		return nil, apperrors.NewInvalidTransition("only pending cases can be accepted", transitionDetails(c.Status, domain.CaseStatusActive))
	}

	updated, err := s.cases.CompareAndSetStatus(ctx, caseID, domain.CaseStatusPending, domain.CaseStatusActive, &actor.ID)
	if err != nil {
		return nil, s.mapTransitionError(err, domain.CaseStatusPending, domain.CaseStatusActive)
	}

	s.publishEvent(ctx, events.Event{
		Type:   events.EventCaseAssigned,
		CaseID: updated.ID,
		Actor:  staffActor(actor.ID),
		Payload: events.CaseAssignedPayload{
			CustomerID: updated.CustomerID,
			AgentID:    actor.ID,
		},
	})
	return updated, nil
}

// RejectCase moves a pending case to rejected (agent or admin, before
// acceptance). Rejected is terminal.
func (s *CaseService) RejectCase(ctx context.Context, actor *domain.StaffMember, caseID string) (*domain.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CaseStatusPending {
		return nil, apperrors.NewInvalidTransition("only pending cases can be rejected", transitionDetails(c.Status, domain.CaseStatusRejected))
	}

	updated, err := s.cases.CompareAndSetStatus(ctx, caseID, domain.CaseStatusPending, domain.CaseStatusRejected, nil)
	if err != nil {
		return nil, s.mapTransitionError(err, domain.CaseStatusPending, domain.CaseStatusRejected)
	}

	s.publishStatusChanged(ctx, updated, domain.CaseStatusPending, staffActor(actor.ID))
	return updated, nil
}

// ResolveCase completes an active case. Only the currently assigned agent
// (or an admin override) may resolve. Resolving an already resolved case is
// a no-op so retries stay safe; no event is re-emitted for the no-op.
func (s *CaseService) ResolveCase(ctx context.Context, actor *domain.StaffMember, caseID string) (*domain.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CaseStatusResolved {
		return c, nil
	}
	if c.Status != domain.CaseStatusActive {
		return nil, apperrors.NewInvalidTransition("only active cases can be resolved", transitionDetails(c.Status, domain.CaseStatusResolved))
	}
	assigned := c.AssignedAgentID != nil && *c.AssignedAgentID == actor.ID
	if !assigned && actor.Role != domain.StaffRoleAdmin {
		return nil, apperrors.NewNotAuthorized("only the assigned agent may resolve this case")
	}

	updated, err := s.cases.CompareAndSetStatus(ctx, caseID, domain.CaseStatusActive, domain.CaseStatusResolved, nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race; a concurrent resolve keeps this call idempotent.
			current, getErr := s.getCase(ctx, caseID)
			if getErr == nil && current.Status == domain.CaseStatusResolved {
				return current, nil
			}
		}
		return nil, s.mapTransitionError(err, domain.CaseStatusActive, domain.CaseStatusResolved)
	}

	s.publishStatusChanged(ctx, updated, domain.CaseStatusActive, staffActor(actor.ID))
	return updated, nil
}

// GetCase fetches a case the identity is allowed to observe.
func (s *CaseService) GetCase(ctx context.Context, id domain.Identity, caseID string) (*domain.Case, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !domain.IsChannelMember(id, c) {
		return nil, apperrors.NewNotAuthorized("not a participant of this case")
	}
	return c, nil
}

// ListCases returns cases visible to the identity. Customers see their own
// cases, agents their assignments; supervisory roles see everything and may
// filter by participant.
func (s *CaseService) ListCases(ctx context.Context, id domain.Identity, filter CaseListFilter) ([]domain.Case, error) {
	repoFilter := repository.CaseFilter{
		Statuses:   filter.Statuses,
		Department: filter.Department,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch {
	case id.Subject == domain.SubjectTypeUser:
		repoFilter.CustomerID = &id.SubjectID
	case id.Role.Supervisory():
		repoFilter.CustomerID = filter.CustomerID
		repoFilter.AssignedAgentID = filter.AgentID
	default:
		repoFilter.AssignedAgentID = &id.SubjectID
	}
	result, err := s.cases.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

func (s *CaseService) getCase(ctx context.Context, caseID string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	return c, nil
}

func (s *CaseService) mapTransitionError(err error, from, to domain.CaseStatus) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewInvalidTransition("case status changed concurrently", transitionDetails(from, to))
	}
	return apperrors.MapError(err)
}

func (s *CaseService) publishStatusChanged(ctx context.Context, c *domain.Case, from domain.CaseStatus, actor events.Actor) {
	s.publishEvent(ctx, events.Event{
		Type:   events.EventCaseStatusChanged,
		CaseID: c.ID,
		Actor:  actor,
		Payload: events.CaseStatusChangedPayload{
			CustomerID: c.CustomerID,
			OldStatus:  from,
			NewStatus:  c.Status,
		},
	})
}

func (s *CaseService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func requireStaff(actor *domain.StaffMember) error {
	if actor == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	if !actor.Active {
		return apperrors.NewNotAuthorized("staff member inactive")
	}
	return nil
}

func transitionDetails(from, to domain.CaseStatus) map[string]any {
	return map[string]any{"from": from, "to": to}
}

func userActor(userID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeUser, UserID: &userID}
}

func staffActor(staffID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeStaff, StaffID: &staffID}
}
