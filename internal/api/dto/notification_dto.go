package dto

import (
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// NotificationResponse mirrors one ledger entry.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body"`
	CaseID    *string                 `json:"case_id"`
	Read      bool                    `json:"read"`
	Metadata  map[string]any          `json:"metadata"`
	CreatedAt time.Time               `json:"created_at"`
}

// UnreadCountResponse carries the unread ledger count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}
