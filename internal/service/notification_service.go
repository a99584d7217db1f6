package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/realtime"
	"github.com/spec-kit/case-service/internal/repository"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// NotificationPusher delivers a notification to an identity's live
// connections. Implemented by the realtime registry.
type NotificationPusher interface {
	Push(subject domain.SubjectType, recipientID string, env realtime.Envelope) int
}

// NotificationService is the fan-out dispatcher: it consumes domain events,
// always writes a durable ledger entry per recipient, and pushes to live
// connections when present. Dispatch is at-least-once; each handler
// invocation writes its own rows and duplicates are tolerated.
type NotificationService struct {
	ledger     repository.NotificationRepository
	dispatcher events.Dispatcher
	pusher     NotificationPusher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(ledger repository.NotificationRepository, dispatcher events.Dispatcher, pusher NotificationPusher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		ledger:     ledger,
		dispatcher: dispatcher,
		pusher:     pusher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to domain events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCaseAssigned, n.handleCaseAssigned)
	n.dispatcher.Subscribe(events.EventCaseStatusChanged, n.handleCaseStatusChanged)
	n.dispatcher.Subscribe(events.EventCaseMessageAdded, n.handleCaseMessageAdded)
}

func (n *NotificationService) handleCaseAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseAssignedPayload)
	if !ok {
		return nil
	}
	n.notify(ctx, &domain.Notification{
		RecipientID: payload.CustomerID,
		Recipient:   domain.SubjectTypeUser,
		Type:        domain.NotificationAgentAssigned,
		Title:       "Agent assigned",
		Body:        "An agent has been assigned to your case.",
		CaseID:      &event.CaseID,
		Metadata:    map[string]any{"agent_id": payload.AgentID, "reassigned": payload.Reassigned},
	})
	n.notify(ctx, &domain.Notification{
		RecipientID: payload.AgentID,
		Recipient:   domain.SubjectTypeStaff,
		Type:        domain.NotificationCaseAssigned,
		Title:       "Case assigned",
		Body:        "A support case has been assigned to you.",
		CaseID:      &event.CaseID,
		Metadata:    map[string]any{"customer_id": payload.CustomerID},
	})
	return nil
}

func (n *NotificationService) handleCaseStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseStatusChangedPayload)
	if !ok {
		return nil
	}
	kind := domain.NotificationCaseStatusUpdated
	title := "Case status updated"
	if payload.NewStatus == domain.CaseStatusResolved {
		kind = domain.NotificationCaseResolved
		title = "Case resolved"
	}
	n.notify(ctx, &domain.Notification{
		RecipientID: payload.CustomerID,
		Recipient:   domain.SubjectTypeUser,
		Type:        kind,
		Title:       title,
		Body:        "Your case moved from " + string(payload.OldStatus) + " to " + string(payload.NewStatus) + ".",
		CaseID:      &event.CaseID,
		Metadata:    map[string]any{"old_status": payload.OldStatus, "new_status": payload.NewStatus},
	})
	return nil
}

func (n *NotificationService) handleCaseMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseMessageAddedPayload)
	if !ok {
		return nil
	}
	for _, recipient := range messageRecipients(payload) {
		n.notify(ctx, &domain.Notification{
			RecipientID: recipient.id,
			Recipient:   recipient.subject,
			Type:        domain.NotificationNewMessage,
			Title:       "New message",
			Body:        payload.BodyPreview,
			CaseID:      &event.CaseID,
			Metadata:    map[string]any{"message_id": payload.MessageID, "sender": payload.Sender},
		})
	}
	return nil
}

type recipientRef struct {
	id      string
	subject domain.SubjectType
}

// messageRecipients resolves who is notified of a new message: the case
// participant who is not the sender. System messages notify both
// participants.
func messageRecipients(payload events.CaseMessageAddedPayload) []recipientRef {
	var recipients []recipientRef
	switch payload.Sender {
	case domain.SenderRoleCustomer:
		if payload.AssignedAgentID != nil {
			recipients = append(recipients, recipientRef{*payload.AssignedAgentID, domain.SubjectTypeStaff})
		}
	case domain.SenderRoleAgent:
		recipients = append(recipients, recipientRef{payload.CustomerID, domain.SubjectTypeUser})
	case domain.SenderRoleSystem:
		recipients = append(recipients, recipientRef{payload.CustomerID, domain.SubjectTypeUser})
		if payload.AssignedAgentID != nil {
			recipients = append(recipients, recipientRef{*payload.AssignedAgentID, domain.SubjectTypeStaff})
		}
	}
	return recipients
}

// notify writes the durable ledger entry, then pushes to live connections.
// The ledger write is the record of truth; a failed push is dropped and the
// recipient discovers the entry on next poll.
func (n *NotificationService) notify(ctx context.Context, notification *domain.Notification) {
	if err := n.ledger.Create(ctx, notification); err != nil {
		n.logger.Error("notification ledger write failed",
			zap.Error(err),
			zap.String("recipient_id", notification.RecipientID),
			zap.String("type", string(notification.Type)))
		return
	}
	if n.pusher != nil {
		n.pusher.Push(notification.Recipient, notification.RecipientID, realtime.Envelope{
			Type:         realtime.EnvelopeNotification,
			Notification: notification,
		})
	}
}

// NotificationListFilter mirrors the ledger filter for the API layer.
type NotificationListFilter = repository.NotificationFilter

// List returns the recipient's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, id domain.Identity, filter NotificationListFilter) ([]domain.Notification, error) {
	result, err := n.ledger.ListByRecipient(ctx, id.Subject, id.SubjectID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if result == nil {
		result = []domain.Notification{}
	}
	return result, nil
}

// UnreadCount returns the number of unread ledger entries.
func (n *NotificationService) UnreadCount(ctx context.Context, id domain.Identity) (int64, error) {
	count, err := n.ledger.UnreadCount(ctx, id.Subject, id.SubjectID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// MarkRead marks one of the recipient's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, id domain.Identity, notificationID string) error {
	if err := n.ledger.MarkRead(ctx, id.Subject, id.SubjectID, notificationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": notificationID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the recipient as read.
func (n *NotificationService) MarkAllRead(ctx context.Context, id domain.Identity) error {
	return apperrors.MapError(n.ledger.MarkAllRead(ctx, id.Subject, id.SubjectID))
}

// Delete removes one of the recipient's notifications.
func (n *NotificationService) Delete(ctx context.Context, id domain.Identity, notificationID string) error {
	if err := n.ledger.Delete(ctx, id.Subject, id.SubjectID, notificationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": notificationID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// ClearRead removes every read notification of the recipient.
func (n *NotificationService) ClearRead(ctx context.Context, id domain.Identity) error {
	return apperrors.MapError(n.ledger.ClearRead(ctx, id.Subject, id.SubjectID))
}
