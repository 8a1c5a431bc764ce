// internal/auth/models.go

package auth

// Roles recognized by the platform. Admins bypass the connection gate
// when opening conversations with verified alumni.
const (
	RoleAlumni = "alumni"
	RoleAdmin  = "admin"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
