package auth

// UserRole is the user's role
type UserRole = string

const (
	// RoleAdmin has the highest precedence and may assume any active user.
	RoleAdmin UserRole = "admin"
	// RoleUser is a regular authenticated account.
	RoleUser UserRole = "user"
	// RolePublic is the anonymous/unauthenticated classification.
	RolePublic UserRole = "public"
)

// DefaultRoleOrder is the fixed precedence order used to gate masquerade
// eligibility; index 0 is the highest precedence. RolePublic is deliberately
// absent: an unknown role resolves to "not found" and cannot delegate.
var DefaultRoleOrder = []UserRole{
	RoleAdmin,
	RoleUser,
}

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleUser, RolePublic:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// RolePrecedence returns the precedence index of role within order. Lower
// index means higher precedence. The second return is false when the role is
// not part of the order, which counts as lowest precedence.
func RolePrecedence(order []UserRole, role UserRole) (int, bool) {
	for i, r := range order {
		if r == role {
			return i, true
		}
	}
	return -1, false
}

// HasPrecedence reports whether role a is strictly higher in precedence than
// role b within order. A role missing from the order never has precedence.
func HasPrecedence(order []UserRole, a, b UserRole) bool {
	ai, ok := RolePrecedence(order, a)
	if !ok {
		return false
	}
	bi, ok := RolePrecedence(order, b)
	if !ok {
		return true
	}
	return ai < bi
}

// IsTopRole reports whether role holds the top precedence slot of order.
func IsTopRole(order []UserRole, role UserRole) bool {
	return len(order) > 0 && order[0] == role
}
