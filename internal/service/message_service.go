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

// Broadcaster delivers a freshly appended message to the live channel.
// Implemented by the realtime router; delivery failures never reach the
// sender.
type Broadcaster interface {
	Broadcast(caseID string, msg *domain.Message)
}

// MessageService is the append-only message log for case threads.
type MessageService struct {
	cases       repository.CaseRepository
	messages    repository.MessageRepository
	dispatcher  events.Dispatcher
	broadcaster Broadcaster
}

// MessageDependencies bundles requirements for the message log.
type MessageDependencies struct {
	CaseRepo    repository.CaseRepository
	MessageRepo repository.MessageRepository
	Dispatcher  events.Dispatcher
	Broadcaster Broadcaster
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	return &MessageService{
		cases:       deps.CaseRepo,
		messages:    deps.MessageRepo,
		dispatcher:  deps.Dispatcher,
		broadcaster: deps.Broadcaster,
	}
}

// AppendMessage persists a chat entry for a case participant. Preconditions:
// the case exists and is not rejected, and the sender is a current channel
// member. Resolved cases still accept messages for post-resolution
// follow-up. Once this returns, the entry is durable and every subsequent
// history read observes it in the same relative order.
func (s *MessageService) AppendMessage(ctx context.Context, actor domain.Identity, caseID, body string) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}

	c, err := s.loadWritableCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !domain.IsChannelMember(actor, c) {
		return nil, apperrors.NewNotAuthorized("sender is not a member of this case channel")
	}

	role := domain.SenderRoleCustomer
	if actor.Subject == domain.SubjectTypeStaff {
		role = domain.SenderRoleAgent
	}
	senderID := actor.SubjectID
	return s.append(ctx, c, role, &senderID, body, actorFromIdentity(actor))
}

// AppendSystemMessage records a system-authored entry, bypassing membership.
func (s *MessageService) AppendSystemMessage(ctx context.Context, caseID, body string) (*domain.Message, error) {
	c, err := s.loadWritableCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, c, domain.SenderRoleSystem, nil, body, events.Actor{})
}

// History returns the ordered message log for a case the identity may
// observe, marking the counterpart's messages as read for the reader.
func (s *MessageService) History(ctx context.Context, actor domain.Identity, caseID string) ([]domain.Message, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	if !domain.IsChannelMember(actor, c) {
		return nil, apperrors.NewNotAuthorized("not a member of this case channel")
	}

	reader := domain.SenderRoleCustomer
	if actor.Subject == domain.SubjectTypeStaff {
		reader = domain.SenderRoleAgent
	}
	if err := s.messages.MarkRead(ctx, caseID, reader); err != nil {
		return nil, apperrors.MapError(err)
	}

	msgs, err := s.messages.ListByCase(ctx, caseID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (s *MessageService) loadWritableCase(ctx context.Context, caseID string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	if c.Status == domain.CaseStatusRejected {
		return nil, apperrors.NewCaseClosed(c.ID)
	}
	return c, nil
}

func (s *MessageService) append(ctx context.Context, c *domain.Case, role domain.SenderRole, senderID *string, body string, actor events.Actor) (*domain.Message, error) {
	msg := &domain.Message{
		CaseID:   c.ID,
		Sender:   role,
		SenderID: senderID,
		Body:     strings.TrimSpace(body),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(c.ID, msg)
	}
	s.publishEvent(ctx, events.Event{
		Type:   events.EventCaseMessageAdded,
		CaseID: c.ID,
		Actor:  actor,
		Payload: events.CaseMessageAddedPayload{
			MessageID:       msg.ID,
			Sender:          msg.Sender,
			SenderID:        msg.SenderID,
			CustomerID:      c.CustomerID,
			AssignedAgentID: c.AssignedAgentID,
			BodyPreview:     stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

func (s *MessageService) publishEvent(ctx context.Context, event events.Event) {
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

func actorFromIdentity(id domain.Identity) events.Actor {
	switch id.Subject {
	case domain.SubjectTypeStaff:
		return staffActor(id.SubjectID)
	default:
		return userActor(id.SubjectID)
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
