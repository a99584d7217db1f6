package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/realtime"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// scenarioConn is a live connection double for full-flow tests.
type scenarioConn struct {
	id       string
	identity domain.Identity

	mu   sync.Mutex
	sent []realtime.Envelope
}

func newScenarioConn(id string, identity domain.Identity) *scenarioConn {
	return &scenarioConn{id: id, identity: identity}
}

func (c *scenarioConn) ID() string                { return c.id }
func (c *scenarioConn) Identity() domain.Identity { return c.identity }

func (c *scenarioConn) Send(env realtime.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *scenarioConn) envelopes() []realtime.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Envelope(nil), c.sent...)
}

type stack struct {
	cases         *CaseService
	messages      *MessageService
	notifications *NotificationService
	registry      *realtime.Registry
	router        *realtime.Router
}

func newStack(staff ...*domain.StaffMember) *stack {
	caseRepo := newFakeCaseRepo()
	messageRepo := newFakeMessageRepo()
	dispatcher := events.NewInMemoryDispatcher()
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, caseRepo, messageRepo, zap.NewNop())

	notifications := NewNotificationService(newFakeNotificationRepo(), dispatcher, registry, zap.NewNop())
	notifications.RegisterHandlers()

	return &stack{
		cases: NewCaseService(CaseDependencies{
			CaseRepo:   caseRepo,
			StaffRepo:  newFakeStaffRepo(staff...),
			Dispatcher: dispatcher,
		}),
		messages: NewMessageService(MessageDependencies{
			CaseRepo:    caseRepo,
			MessageRepo: messageRepo,
			Dispatcher:  dispatcher,
			Broadcaster: router,
		}),
		notifications: notifications,
		registry:      registry,
		router:        router,
	}
}

// Full happy path: customer files a case, an agent accepts, both exchange
// messages over the live channel, the agent resolves, and the ledger keeps
// the trail the customer missed while offline.
func TestSupportFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	agent := activeAgent("agent-a")
	st := newStack(agent)

	customerID := domain.UserIdentity("cust-c")
	agentIdentity := domain.StaffIdentity(agent.ID, domain.StaffRoleAgent)

	c, err := st.cases.CreateCase(ctx, "cust-c", CaseCreateInput{Department: "billing", Description: "wrong invoice"})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	if _, err := st.cases.AcceptCase(ctx, agent, c.ID); err != nil {
		t.Fatalf("AcceptCase: %v", err)
	}

	customerConn := newScenarioConn("conn-c", customerID)
	agentConn := newScenarioConn("conn-a", agentIdentity)
	st.registry.Register(customerConn)
	st.registry.Register(agentConn)

	if err := st.router.Join(ctx, customerConn, c.ID); err != nil {
		t.Fatalf("customer join: %v", err)
	}
	if err := st.router.Join(ctx, agentConn, c.ID); err != nil {
		t.Fatalf("agent join: %v", err)
	}

	if _, err := st.messages.AppendMessage(ctx, customerID, c.ID, "the invoice doubled"); err != nil {
		t.Fatalf("customer message: %v", err)
	}
	if _, err := st.messages.AppendMessage(ctx, agentIdentity, c.ID, "refund issued"); err != nil {
		t.Fatalf("agent message: %v", err)
	}

	var live int
	for _, env := range agentConn.envelopes() {
		if env.Type == realtime.EnvelopeMessage {
			live++
		}
	}
	if live != 2 {
		t.Fatalf("agent live messages = %d, want 2", live)
	}

	if _, err := st.cases.ResolveCase(ctx, agent, c.ID); err != nil {
		t.Fatalf("ResolveCase: %v", err)
	}

	// Customer drops; the resolve notification only lands in the ledger.
	st.router.Disconnect(customerConn)
	st.registry.Unregister(customerConn)

	count, err := st.notifications.UnreadCount(ctx, customerID)
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count == 0 {
		t.Fatalf("customer must have unread ledger entries")
	}
	entries, _ := st.notifications.List(ctx, customerID, NotificationListFilter{UnreadOnly: true})
	var sawResolved bool
	for _, n := range entries {
		if n.Type == domain.NotificationCaseResolved {
			sawResolved = true
		}
	}
	if !sawResolved {
		t.Fatalf("resolved notification missing from ledger: %+v", entries)
	}
}

// A second agent poking at a pending case they were never assigned must not
// flip it active for themselves while the admin routes it elsewhere.
func TestAssignmentRace(t *testing.T) {
	ctx := context.Background()
	agentA := activeAgent("agent-a")
	agentB := activeAgent("agent-b")
	admin := adminStaff("admin-1")
	st := newStack(agentA, agentB, admin)

	c, err := st.cases.CreateCase(ctx, "cust-c", CaseCreateInput{Department: "it", Description: "printer"})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	if _, err := st.cases.AssignAgent(ctx, admin, c.ID, agentA.ID); err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}

	if _, err := st.cases.AcceptCase(ctx, agentB, c.ID); !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("late accept must fail with INVALID_TRANSITION, got %v", err)
	}

	got, err := st.cases.GetCase(ctx, domain.StaffIdentity(agentA.ID, domain.StaffRoleAgent), c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.AssignedAgentID == nil || *got.AssignedAgentID != agentA.ID {
		t.Fatalf("assignment must stick with agent A: %+v", got)
	}

	// Agent B cannot message either; they are not a channel member.
	if _, err := st.messages.AppendMessage(ctx, domain.StaffIdentity(agentB.ID, domain.StaffRoleAgent), c.ID, "hi"); !apperrors.HasCode(err, apperrors.CodeNotAuthorized) {
		t.Fatalf("non-member append must fail, got %v", err)
	}
}

// Reconnection: a customer who disconnects mid-thread gets the complete
// ordered history in the snapshot on rejoin, including messages sent while
// they were away.
func TestReconnectReplaysFullHistory(t *testing.T) {
	ctx := context.Background()
	agent := activeAgent("agent-a")
	st := newStack(agent)

	customerID := domain.UserIdentity("cust-c")
	agentIdentity := domain.StaffIdentity(agent.ID, domain.StaffRoleAgent)

	c, _ := st.cases.CreateCase(ctx, "cust-c", CaseCreateInput{Department: "it", Description: "printer"})
	if _, err := st.cases.AcceptCase(ctx, agent, c.ID); err != nil {
		t.Fatalf("AcceptCase: %v", err)
	}

	first := newScenarioConn("conn-1", customerID)
	st.registry.Register(first)
	if err := st.router.Join(ctx, first, c.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := st.messages.AppendMessage(ctx, customerID, c.ID, "one"); err != nil {
		t.Fatalf("append: %v", err)
	}

	st.router.Disconnect(first)
	st.registry.Unregister(first)

	for _, body := range []string{"two", "three"} {
		if _, err := st.messages.AppendMessage(ctx, agentIdentity, c.ID, body); err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
	}

	second := newScenarioConn("conn-2", customerID)
	st.registry.Register(second)
	if err := st.router.Join(ctx, second, c.ID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	envs := second.envelopes()
	if len(envs) == 0 || envs[0].Type != realtime.EnvelopeSnapshot {
		t.Fatalf("first envelope must be a snapshot, got %+v", envs)
	}
	if len(envs[0].Messages) != 3 {
		t.Fatalf("snapshot length = %d, want 3", len(envs[0].Messages))
	}
	for i, want := range []string{"one", "two", "three"} {
		if envs[0].Messages[i].Body != want {
			t.Fatalf("snapshot slot %d = %q, want %q", i, envs[0].Messages[i].Body, want)
		}
	}
}

func TestSupervisorObservesWithoutAssignment(t *testing.T) {
	ctx := context.Background()
	agent := activeAgent("agent-a")
	st := newStack(agent)

	c, _ := st.cases.CreateCase(ctx, "cust-c", CaseCreateInput{Department: "it", Description: "printer"})
	if _, err := st.cases.AcceptCase(ctx, agent, c.ID); err != nil {
		t.Fatalf("AcceptCase: %v", err)
	}

	supConn := newScenarioConn("conn-s", domain.StaffIdentity("sup-1", domain.StaffRoleSupervisor))
	st.registry.Register(supConn)
	if err := st.router.Join(ctx, supConn, c.ID); err != nil {
		t.Fatalf("supervisor join: %v", err)
	}

	if _, err := st.messages.AppendMessage(ctx, domain.UserIdentity("cust-c"), c.ID, "anyone there"); err != nil {
		t.Fatalf("append: %v", err)
	}

	envs := supConn.envelopes()
	if len(envs) != 2 || envs[1].Type != realtime.EnvelopeMessage {
		t.Fatalf("supervisor must receive the live message, got %+v", envs)
	}
}
