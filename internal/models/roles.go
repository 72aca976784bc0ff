package models

// Roles
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// ValidRole reports whether role is known to the application.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// DefaultRoles returns the roles assigned on self-registration.
func DefaultRoles() []string {
	return []string{RoleUser}
}
