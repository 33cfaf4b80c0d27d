package domain

import (
	"time"

	"github.com/google/uuid"
)

// Admin is a back-office identity. Admins are not linked to comptes and may
// act on any account.
type Admin struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
