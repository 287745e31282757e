package auth

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RoleSystemAdmin = "SystemAdmin"
)

const UserStatusActive = "active"

// UserContext is the authenticated caller attached to the request context.
type UserContext struct {
	UserID    string
	TenantID  string
	RoleID    string
	RoleName  string
	SessionID string
}

// IsHR reports whether the caller administers performance data for the whole tenant.
func (u UserContext) IsHR() bool {
	return u.RoleName == RoleHR
}
