package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent      StaffRole = "AGENT"
	StaffRoleSupervisor StaffRole = "SUPERVISOR"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// Supervisory reports whether the role observes every case channel.
func (r StaffRole) Supervisory() bool {
	return r == StaffRoleSupervisor || r == StaffRoleAdmin
}

// StaffMember models a support agent, supervisor or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Department   *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
