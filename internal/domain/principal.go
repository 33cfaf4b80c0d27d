package domain

import "github.com/google/uuid"

// Role qualifies an authenticated principal.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Principal is the authenticated identity attached to a request. The role is
// resolved exactly once at authentication time and carried through the
// request context; downstream code never re-derives it from storage.
type Principal struct {
	ID      uuid.UUID
	Role    Role
	Email   string
	TokenID string
}

// IsAdmin reports whether the principal has unrestricted account access.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owns reports whether the principal is the client owning the given
// client id. Admins do not own comptes; ownership is a client relation.
func (p Principal) Owns(clientID uuid.UUID) bool {
	return p.Role == RoleClient && p.ID == clientID
}
