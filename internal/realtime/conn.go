package realtime

import (
	"github.com/spec-kit/case-service/internal/domain"
)

// EnvelopeType enumerates push payload kinds.
type EnvelopeType string

const (
	EnvelopeSnapshot     EnvelopeType = "snapshot"
	EnvelopeMessage      EnvelopeType = "message"
	EnvelopeNotification EnvelopeType = "notification"
)

// Envelope is one push event delivered to a live connection.
type Envelope struct {
	Type         EnvelopeType         `json:"type"`
	CaseID       string               `json:"case_id,omitempty"`
	Messages     []domain.Message     `json:"messages,omitempty"`
	Message      *domain.Message      `json:"message,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

// Connection is one live client connection. Send must be safe for
// concurrent use; a failed send means the peer is gone and is never
// surfaced to the producer.
type Connection interface {
	ID() string
	Identity() domain.Identity
	Send(env Envelope) error
}
