/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the compte-service needs. Keeping the interface separate from the
 * PostgreSQL implementation lets the application layer be tested against
 * in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Identifier handling.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banqueapi/compte-service/internal/domain"
)

var (
	ErrAdminNotFound   = errors.New("admin not found")
	ErrClientNotFound  = errors.New("client not found")
	ErrCompteNotFound  = errors.New("compte not found")
	ErrDuplicateClient = errors.New("client unique field already in use")
	// ErrVersionConflict is returned when a version-checked update observes a
	// concurrent mutation of the same compte row.
	ErrVersionConflict = errors.New("compte version conflict")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Credential lookups. Login resolves admins before clients.
	FindAdminByEmail(ctx context.Context, email string) (*domain.Admin, error)
	FindClientByEmail(ctx context.Context, email string) (*domain.Client, error)
	FindClientByID(ctx context.Context, id uuid.UUID) (*domain.Client, error)

	// MarkClientCodeVerified stamps the one-time code as verified. It is a
	// no-op if the timestamp is already set.
	MarkClientCodeVerified(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateClient(ctx context.Context, client *domain.Client) error

	// CreateCompte inserts a new account. A blank NumeroCompte is generated
	// and guaranteed unique; version starts at 1.
	CreateCompte(ctx context.Context, compte *domain.Compte) error
	FindCompteByID(ctx context.Context, id uuid.UUID) (*domain.Compte, error)
	ListComptes(ctx context.Context, filter domain.CompteFilter) (*domain.ComptePage, error)

	// UpdateCompteState persists the account's lifecycle fields with a
	// compare-and-swap on the version counter. On success the compte's
	// Version and DerniereModification are refreshed in place; a concurrent
	// bump yields ErrVersionConflict.
	UpdateCompteState(ctx context.Context, compte *domain.Compte, expectedVersion int) error

	// CloseCompte marks the account ferme and soft-deletes the row under the
	// same version check.
	CloseCompte(ctx context.Context, compte *domain.Compte, expectedVersion int) error

	// UpdateCompteOwner applies the owning client's profile update and bumps
	// the compte version counter in one transaction, so a version conflict
	// never leaves a committed profile change behind. Returns the new
	// version.
	UpdateCompteOwner(ctx context.Context, compteID uuid.UUID, expectedVersion int, clientID uuid.UUID, update domain.ClientUpdate) (int, error)
}
