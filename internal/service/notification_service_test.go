package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/realtime"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

type notificationFixture struct {
	svc        *NotificationService
	ledger     *fakeNotificationRepo
	pusher     *capturePusher
	dispatcher events.Dispatcher
}

func newNotificationFixture() *notificationFixture {
	ledger := newFakeNotificationRepo()
	pusher := &capturePusher{}
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(ledger, dispatcher, pusher, zap.NewNop())
	svc.RegisterHandlers()
	return &notificationFixture{svc: svc, ledger: ledger, pusher: pusher, dispatcher: dispatcher}
}

func TestCaseAssignedNotifiesBothParties(t *testing.T) {
	fx := newNotificationFixture()

	err := fx.dispatcher.Publish(context.Background(), events.Event{
		ID:     "evt-1",
		Type:   events.EventCaseAssigned,
		CaseID: "case-1",
		Payload: events.CaseAssignedPayload{
			CustomerID: "cust-1",
			AgentID:    "agent-1",
		},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	customerEntries, _ := fx.ledger.ListByRecipient(context.Background(), domain.SubjectTypeUser, "cust-1", NotificationListFilter{})
	if len(customerEntries) != 1 || customerEntries[0].Type != domain.NotificationAgentAssigned {
		t.Fatalf("customer ledger wrong: %+v", customerEntries)
	}
	agentEntries, _ := fx.ledger.ListByRecipient(context.Background(), domain.SubjectTypeStaff, "agent-1", NotificationListFilter{})
	if len(agentEntries) != 1 || agentEntries[0].Type != domain.NotificationCaseAssigned {
		t.Fatalf("agent ledger wrong: %+v", agentEntries)
	}
	if len(fx.pusher.pushes) != 2 {
		t.Fatalf("expected two live pushes, got %d", len(fx.pusher.pushes))
	}
	for _, push := range fx.pusher.pushes {
		if push.env.Type != realtime.EnvelopeNotification || push.env.Notification == nil {
			t.Fatalf("push envelope wrong: %+v", push.env)
		}
	}
}

func TestResolvedStatusUsesResolvedType(t *testing.T) {
	fx := newNotificationFixture()

	_ = fx.dispatcher.Publish(context.Background(), events.Event{
		Type:   events.EventCaseStatusChanged,
		CaseID: "case-1",
		Payload: events.CaseStatusChangedPayload{
			CustomerID: "cust-1",
			OldStatus:  domain.CaseStatusActive,
			NewStatus:  domain.CaseStatusResolved,
		},
	})

	entries, _ := fx.ledger.ListByRecipient(context.Background(), domain.SubjectTypeUser, "cust-1", NotificationListFilter{})
	if len(entries) != 1 || entries[0].Type != domain.NotificationCaseResolved {
		t.Fatalf("expected case resolved notification, got %+v", entries)
	}
}

func TestMessageNotifiesCounterpartOnly(t *testing.T) {
	fx := newNotificationFixture()
	agentID := "agent-1"

	_ = fx.dispatcher.Publish(context.Background(), events.Event{
		Type:   events.EventCaseMessageAdded,
		CaseID: "case-1",
		Payload: events.CaseMessageAddedPayload{
			MessageID:       "msg-1",
			Sender:          domain.SenderRoleCustomer,
			CustomerID:      "cust-1",
			AssignedAgentID: &agentID,
			BodyPreview:     "hello",
		},
	})

	customerEntries, _ := fx.ledger.ListByRecipient(context.Background(), domain.SubjectTypeUser, "cust-1", NotificationListFilter{})
	if len(customerEntries) != 0 {
		t.Fatalf("sender must not be notified: %+v", customerEntries)
	}
	agentEntries, _ := fx.ledger.ListByRecipient(context.Background(), domain.SubjectTypeStaff, agentID, NotificationListFilter{})
	if len(agentEntries) != 1 || agentEntries[0].Type != domain.NotificationNewMessage {
		t.Fatalf("agent must get new message notification: %+v", agentEntries)
	}
}

func TestCustomerMessageWithoutAgentNotifiesNobody(t *testing.T) {
	fx := newNotificationFixture()

	_ = fx.dispatcher.Publish(context.Background(), events.Event{
		Type:   events.EventCaseMessageAdded,
		CaseID: "case-1",
		Payload: events.CaseMessageAddedPayload{
			MessageID:  "msg-1",
			Sender:     domain.SenderRoleCustomer,
			CustomerID: "cust-1",
		},
	})

	if len(fx.pusher.pushes) != 0 {
		t.Fatalf("no recipient exists yet, got pushes %+v", fx.pusher.pushes)
	}
}

func TestSystemMessageNotifiesBothParticipants(t *testing.T) {
	fx := newNotificationFixture()
	agentID := "agent-1"

	_ = fx.dispatcher.Publish(context.Background(), events.Event{
		Type:   events.EventCaseMessageAdded,
		CaseID: "case-1",
		Payload: events.CaseMessageAddedPayload{
			MessageID:       "msg-1",
			Sender:          domain.SenderRoleSystem,
			CustomerID:      "cust-1",
			AssignedAgentID: &agentID,
			BodyPreview:     "case escalated",
		},
	})

	if len(fx.pusher.pushes) != 2 {
		t.Fatalf("system message must notify both, got %d pushes", len(fx.pusher.pushes))
	}
}

func TestLedgerWriteFailureSkipsPush(t *testing.T) {
	fx := newNotificationFixture()
	fx.ledger.failing = true

	_ = fx.dispatcher.Publish(context.Background(), events.Event{
		Type:   events.EventCaseStatusChanged,
		CaseID: "case-1",
		Payload: events.CaseStatusChangedPayload{
			CustomerID: "cust-1",
			OldStatus:  domain.CaseStatusPending,
			NewStatus:  domain.CaseStatusRejected,
		},
	})

	if len(fx.pusher.pushes) != 0 {
		t.Fatalf("push must not happen without a ledger row")
	}
}

func TestLedgerReadAndMutationOps(t *testing.T) {
	fx := newNotificationFixture()
	recipient := domain.UserIdentity("cust-1")

	for i := 0; i < 3; i++ {
		_ = fx.dispatcher.Publish(context.Background(), events.Event{
			Type:   events.EventCaseStatusChanged,
			CaseID: "case-1",
			Payload: events.CaseStatusChangedPayload{
				CustomerID: "cust-1",
				OldStatus:  domain.CaseStatusPending,
				NewStatus:  domain.CaseStatusActive,
			},
		})
	}

	count, err := fx.svc.UnreadCount(context.Background(), recipient)
	if err != nil || count != 3 {
		t.Fatalf("UnreadCount = %d, %v; want 3", count, err)
	}

	list, err := fx.svc.List(context.Background(), recipient, NotificationListFilter{UnreadOnly: true})
	if err != nil || len(list) != 3 {
		t.Fatalf("List unread = %d, %v; want 3", len(list), err)
	}

	if err := fx.svc.MarkRead(context.Background(), recipient, list[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	count, _ = fx.svc.UnreadCount(context.Background(), recipient)
	if count != 2 {
		t.Fatalf("UnreadCount after MarkRead = %d, want 2", count)
	}

	if err := fx.svc.MarkAllRead(context.Background(), recipient); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	count, _ = fx.svc.UnreadCount(context.Background(), recipient)
	if count != 0 {
		t.Fatalf("UnreadCount after MarkAllRead = %d, want 0", count)
	}

	if err := fx.svc.ClearRead(context.Background(), recipient); err != nil {
		t.Fatalf("ClearRead: %v", err)
	}
	remaining, _ := fx.svc.List(context.Background(), recipient, NotificationListFilter{})
	if len(remaining) != 0 {
		t.Fatalf("ClearRead left %d entries", len(remaining))
	}
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	fx := newNotificationFixture()

	_ = fx.dispatcher.Publish(context.Background(), events.Event{
		Type:   events.EventCaseStatusChanged,
		CaseID: "case-1",
		Payload: events.CaseStatusChangedPayload{
			CustomerID: "cust-1",
			OldStatus:  domain.CaseStatusPending,
			NewStatus:  domain.CaseStatusActive,
		},
	})
	list, _ := fx.svc.List(context.Background(), domain.UserIdentity("cust-1"), NotificationListFilter{})
	if len(list) != 1 {
		t.Fatalf("seed entry missing")
	}

	if err := fx.svc.MarkRead(context.Background(), domain.UserIdentity("cust-2"), list[0].ID); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("other recipient must get NOT_FOUND, got %v", err)
	}
	if err := fx.svc.Delete(context.Background(), domain.UserIdentity("cust-2"), list[0].ID); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("other recipient delete must get NOT_FOUND, got %v", err)
	}
}
