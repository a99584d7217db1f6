package events

import (
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseCreated       EventType = "case_created"
	EventCaseAssigned      EventType = "case_assigned"
	EventCaseStatusChanged EventType = "case_status_changed"
	EventCaseMessageAdded  EventType = "case_message_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a committed state change emitted by the lifecycle
// manager or the message log.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	CustomerID string `json:"customer_id"`
	Department string `json:"department"`
}

// CaseAssignedPayload payload. Reassigned is true when the case was already
// active and only the assignee changed.
type CaseAssignedPayload struct {
	CustomerID string `json:"customer_id"`
	AgentID    string `json:"agent_id"`
	Reassigned bool   `json:"reassigned"`
}

// CaseStatusChangedPayload payload.
type CaseStatusChangedPayload struct {
	CustomerID string            `json:"customer_id"`
	OldStatus  domain.CaseStatus `json:"old_status"`
	NewStatus  domain.CaseStatus `json:"new_status"`
}

// CaseMessageAddedPayload payload. Participant references are carried so
// the dispatcher can determine recipients without re-reading the case.
type CaseMessageAddedPayload struct {
	MessageID       string            `json:"message_id"`
	Sender          domain.SenderRole `json:"sender"`
	SenderID        *string           `json:"sender_id,omitempty"`
	CustomerID      string            `json:"customer_id"`
	AssignedAgentID *string           `json:"assigned_agent_id,omitempty"`
	BodyPreview     string            `json:"body_preview"`
}
