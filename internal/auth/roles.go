package auth

// Role represents a caller role. Identity and session management live
// with the external identity collaborator; this service only verifies
// the tokens it issues.
type Role string

const (
	RoleGuardian Role = "guardian"
	RoleAdmin    Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleGuardian, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleGuardian:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}
