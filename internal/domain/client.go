package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client is an account holder. Clients authenticate with email and password
// and must supply their one-time code on first login.
type Client struct {
	ID             uuid.UUID  `json:"id"`
	Titulaire      string     `json:"titulaire"`
	NCI            *string    `json:"nci,omitempty"`
	Email          string     `json:"email"`
	Telephone      string     `json:"telephone"`
	Adresse        *string    `json:"adresse,omitempty"`
	PasswordHash   string     `json:"-"`
	Code           string     `json:"-"`
	CodeVerifiedAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// ClientUpdate carries the mutable client profile fields of a PATCH request.
// Nil fields are left untouched.
type ClientUpdate struct {
	Titulaire    *string
	Telephone    *string
	Email        *string
	PasswordHash *string
	NCI          *string
}

// Empty reports whether the update would change nothing.
func (u ClientUpdate) Empty() bool {
	return u.Titulaire == nil && u.Telephone == nil && u.Email == nil &&
		u.PasswordHash == nil && u.NCI == nil
}
