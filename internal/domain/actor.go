package domain

// Role is the closed set of actor roles supplied by access control.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Actor is an authenticated identity resolved outside the engine.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor may view resources owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsAdmin() || a.ID == ownerID
}
