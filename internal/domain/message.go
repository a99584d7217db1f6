package domain

import "time"

// SenderRole indicates who authored a chat message.
type SenderRole string

const (
	SenderRoleCustomer SenderRole = "customer"
	SenderRoleAgent    SenderRole = "agent"
	SenderRoleSystem   SenderRole = "system"
)

// Message is one append-only chat entry in a case thread. Once persisted
// only the Read flag may change. Seq is assigned per case in insertion
// order and is the total order observed by every reader.
type Message struct {
	ID        string
	CaseID    string
	Seq       int64
	Sender    SenderRole
	SenderID  *string
	Body      string
	Read      bool
	CreatedAt time.Time
}
