package domain

import "time"

// CaseStatus enumerates lifecycle states for support cases.
type CaseStatus string

const (
	CaseStatusPending  CaseStatus = "pending"
	CaseStatusActive   CaseStatus = "active"
	CaseStatusResolved CaseStatus = "resolved"
	CaseStatusRejected CaseStatus = "rejected"
)

// Terminal reports whether no transition may leave the status.
func (s CaseStatus) Terminal() bool {
	return s == CaseStatusResolved || s == CaseStatusRejected
}

// Case is the aggregate for one customer-reported incident. Status and
// assignment are written only through lifecycle transitions; cases are
// never hard-deleted.
type Case struct {
	ID              string
	CustomerID      string
	AssignedAgentID *string
	Department      string
	Description     string
	Location        string
	Status          CaseStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
