package domain

// Identity is the authenticated caller as seen by the lifecycle manager and
// the channel router. Role is set only for staff subjects.
type Identity struct {
	SubjectID string
	Subject   SubjectType
	Role      StaffRole
}

// UserIdentity builds a customer identity.
func UserIdentity(userID string) Identity {
	return Identity{SubjectID: userID, Subject: SubjectTypeUser}
}

// StaffIdentity builds a staff identity.
func StaffIdentity(staffID string, role StaffRole) Identity {
	return Identity{SubjectID: staffID, Subject: SubjectTypeStaff, Role: role}
}

// IsChannelMember reports whether the identity may observe live traffic for
// the case: the customer, the currently assigned agent, or a supervisory
// role. Membership is derived from current case state and must never be
// cached across a reassignment.
func IsChannelMember(id Identity, c *Case) bool {
	if c == nil {
		return false
	}
	switch id.Subject {
	case SubjectTypeUser:
		return c.CustomerID == id.SubjectID
	case SubjectTypeStaff:
		if id.Role.Supervisory() {
			return true
		}
		return c.AssignedAgentID != nil && *c.AssignedAgentID == id.SubjectID
	default:
		return false
	}
}
