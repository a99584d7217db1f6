package dto

import (
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// CreateCaseRequest payload.
type CreateCaseRequest struct {
	Department  string `json:"department"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// AssignAgentRequest payload.
type AssignAgentRequest struct {
	AgentID string `json:"agent_id"`
}

// CaseResponse mirrors one case record.
type CaseResponse struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer_id"`
	AssignedAgentID *string           `json:"assigned_agent_id"`
	Department      string            `json:"department"`
	Description     string            `json:"description"`
	Location        string            `json:"location"`
	Status          domain.CaseStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MessageResponse represents one chat entry.
type MessageResponse struct {
	ID        string            `json:"id"`
	CaseID    string            `json:"case_id"`
	Seq       int64             `json:"seq"`
	Sender    domain.SenderRole `json:"sender"`
	SenderID  *string           `json:"sender_id"`
	Body      string            `json:"body"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body string `json:"body"`
}
