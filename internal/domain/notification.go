package domain

import "time"

// NotificationType enumerates fan-out kinds.
type NotificationType string

const (
	NotificationNewMessage        NotificationType = "new_message"
	NotificationAgentAssigned     NotificationType = "agent_assigned"
	NotificationCaseAssigned      NotificationType = "case_assigned"
	NotificationCaseStatusUpdated NotificationType = "case_status_updated"
	NotificationCaseResolved      NotificationType = "case_resolved"
)

// Notification is one durable fan-out record for one recipient. Created
// only by the notification dispatcher; mutated only by the recipient
// marking read or deleting.
type Notification struct {
	ID          string
	RecipientID string
	Recipient   SubjectType
	Type        NotificationType
	Title       string
	Body        string
	CaseID      *string
	Read        bool
	Metadata    map[string]any
	CreatedAt   time.Time
}
