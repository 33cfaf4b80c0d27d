/**
 * @description
 * This file contains the core business logic for the compte-service. The
 * `Service` struct orchestrates authentication, access control, and the
 * account lifecycle, coordinating the database repository, the token issuer,
 * the Redis cache, and the event producer.
 *
 * Key features:
 * - Login state machine: admins authenticate with password only, clients
 *   must clear the one-time code gate on their first login.
 * - Per-request access control: clients only ever see their own comptes.
 * - Lifecycle transitions (block/unblock/close) validated in the domain and
 *   persisted with a version compare-and-swap.
 * - Publishes lifecycle events to RabbitMQ for downstream consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - golang.org/x/crypto/bcrypt: Password hashing and verification.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/banqueapi/compte-service/internal/domain"
	"github.com/banqueapi/compte-service/internal/store"
	"github.com/banqueapi/compte-service/pkg/rabbitmq"
)

// tempClientPassword seeds clients created implicitly through compte
// creation, matching the legacy behavior. Holders change it via PATCH.
const tempClientPassword = "password123"

// Cache is the read-cache surface the service depends on. *CompteCache
// implements it; all of its methods tolerate a nil receiver.
type Cache interface {
	GetCompte(ctx context.Context, id uuid.UUID) (*domain.Compte, bool)
	SetCompte(ctx context.Context, compte *domain.Compte)
	GetList(ctx context.Context, filter domain.CompteFilter) (*domain.ComptePage, bool)
	SetList(ctx context.Context, filter domain.CompteFilter, page *domain.ComptePage)
	Invalidate(ctx context.Context, id uuid.UUID)
	InvalidateClient(ctx context.Context, clientID uuid.UUID)
}

// Service provides the business logic of the compte-service.
type Service struct {
	repo     store.Repository
	tokens   *TokenIssuer
	cache    Cache
	events   rabbitmq.Publisher
	exchange string
	now      func() time.Time
}

// NewService creates a Service. cache and events may be nil; both degrade to
// no-ops.
func NewService(repo store.Repository, tokens *TokenIssuer, cache Cache, events rabbitmq.Publisher, exchange string) *Service {
	if cache == nil {
		cache = (*CompteCache)(nil)
	}
	return &Service{
		repo:     repo,
		tokens:   tokens,
		cache:    cache,
		events:   events,
		exchange: exchange,
		now:      time.Now,
	}
}

// LoginResult carries everything the login response needs. Exactly one of
// Admin and Client is set, matching the principal's role.
type LoginResult struct {
	Principal   domain.Principal
	Admin       *domain.Admin
	Client      *domain.Client
	AccessToken string
	ExpiresIn   int
}

// Login authenticates an admin or a client. Admins are looked up first, then
// clients, so an email present in both sets resolves to the admin identity.
// A client whose code was never verified must supply it; a correct code is
// verified exactly once and never asked for again.
func (s *Service) Login(ctx context.Context, email, password, code string) (*LoginResult, error) {
	admin, err := s.repo.FindAdminByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrAdminNotFound) {
		return nil, fmt.Errorf("looking up admin: %w", err)
	}
	if admin != nil {
		if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
		return s.issueFor(domain.Principal{ID: admin.ID, Role: domain.RoleAdmin, Email: admin.Email}, admin, nil)
	}

	client, err := s.repo.FindClientByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if client.CodeVerifiedAt == nil {
		if code == "" || code != client.Code {
			return nil, ErrCodeRequired
		}
		now := s.now()
		if err := s.repo.MarkClientCodeVerified(ctx, client.ID, now); err != nil {
			return nil, fmt.Errorf("marking code verified: %w", err)
		}
		client.CodeVerifiedAt = &now
	}

	return s.issueFor(domain.Principal{ID: client.ID, Role: domain.RoleClient, Email: client.Email}, nil, client)
}

func (s *Service) issueFor(principal domain.Principal, admin *domain.Admin, client *domain.Client) (*LoginResult, error) {
	token, principal, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app op=login outcome=success role=%s user_id=%s", principal.Role, principal.ID)
	return &LoginResult{
		Principal:   principal,
		Admin:       admin,
		Client:      client,
		AccessToken: token,
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	}, nil
}

// Refresh revokes the caller's current token and issues a new one bound to
// the same principal. Validity is never extended in place.
func (s *Service) Refresh(ctx context.Context, principal domain.Principal) (string, int, error) {
	if err := s.tokens.Revoke(ctx, principal); err != nil {
		return "", 0, fmt.Errorf("revoking prior token: %w", err)
	}
	token, _, err := s.tokens.Issue(principal)
	if err != nil {
		return "", 0, err
	}
	log.Printf("level=info component=app op=refresh outcome=success role=%s user_id=%s", principal.Role, principal.ID)
	return token, int(s.tokens.TTL().Seconds()), nil
}

// Logout revokes the caller's current token.
func (s *Service) Logout(ctx context.Context, principal domain.Principal) error {
	if err := s.tokens.Revoke(ctx, principal); err != nil {
		return err
	}
	log.Printf("level=info component=app op=logout outcome=success role=%s user_id=%s", principal.Role, principal.ID)
	return nil
}

// Authenticate validates a bearer token and returns the principal it
// carries. The middleware is the only caller.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	return s.tokens.Parse(ctx, token)
}

// ListComptes returns a page of accounts visible to the principal. Clients
// are always scoped to their own comptes regardless of the filters supplied.
func (s *Service) ListComptes(ctx context.Context, principal domain.Principal, filter domain.CompteFilter) (*domain.ComptePage, error) {
	if principal.Role == domain.RoleClient {
		id := principal.ID
		filter.ClientID = &id
	}

	if page, ok := s.cache.GetList(ctx, filter); ok {
		return page, nil
	}
	page, err := s.repo.ListComptes(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.cache.SetList(ctx, filter, page)
	return page, nil
}

// GetCompte fetches one account, enforcing ownership for client principals.
func (s *Service) GetCompte(ctx context.Context, principal domain.Principal, id uuid.UUID) (*domain.Compte, error) {
	if compte, ok := s.cache.GetCompte(ctx, id); ok {
		if err := s.authorize(principal, compte); err != nil {
			return nil, err
		}
		return compte, nil
	}

	compte, err := s.repo.FindCompteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, compte); err != nil {
		return nil, err
	}
	s.cache.SetCompte(ctx, compte)
	return compte, nil
}

// authorize rejects clients touching comptes they do not own. Admins pass.
func (s *Service) authorize(principal domain.Principal, compte *domain.Compte) error {
	if principal.IsAdmin() || principal.Owns(compte.ClientID) {
		return nil
	}
	return ErrAccessDenied
}

// CreateClientInput identifies an existing client or describes a new one.
type CreateClientInput struct {
	ID        *uuid.UUID
	Titulaire string
	Email     string
	Telephone string
	Adresse   *string
	NCI       *string
}

// CreateCompteInput is the validated payload of POST /v1/comptes.
type CreateCompteInput struct {
	Type         domain.CompteType
	SoldeInitial float64
	Devise       string
	Client       CreateClientInput
}

// CreateCompte opens a new account, creating the owning client first when no
// existing client id was supplied. New clients get a generated verification
// code and a temporary password.
func (s *Service) CreateCompte(ctx context.Context, principal domain.Principal, input CreateCompteInput) (*domain.Compte, error) {
	client, err := s.getOrCreateClient(ctx, input.Client)
	if err != nil {
		return nil, err
	}

	compte := &domain.Compte{
		ClientID: client.ID,
		Type:     input.Type,
		Solde:    input.SoldeInitial,
		Devise:   input.Devise,
	}
	if err := s.repo.CreateCompte(ctx, compte); err != nil {
		return nil, err
	}
	compte.Titulaire = client.Titulaire

	s.cache.Invalidate(ctx, compte.ID)
	s.publish(ctx, domain.EventCompteCreated, compte)
	log.Printf("level=info component=app op=create_compte outcome=success compte_id=%s numero=%s client_id=%s", compte.ID, compte.NumeroCompte, client.ID)
	return compte, nil
}

func (s *Service) getOrCreateClient(ctx context.Context, input CreateClientInput) (*domain.Client, error) {
	if input.ID != nil {
		return s.repo.FindClientByID(ctx, *input.ID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(tempClientPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing temporary password: %w", err)
	}
	client := &domain.Client{
		Titulaire:    input.Titulaire,
		Email:        input.Email,
		Telephone:    input.Telephone,
		Adresse:      input.Adresse,
		NCI:          input.NCI,
		PasswordHash: string(hash),
		Code:         generateClientCode(),
	}
	if err := s.repo.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	log.Printf("level=info component=app op=create_client outcome=success client_id=%s", client.ID)
	return client, nil
}

// generateClientCode produces the 6-character one-time verification code a
// new client must present on first login.
func generateClientCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// UpdateCompteInput carries the mutable owner-profile fields of a PATCH.
type UpdateCompteInput struct {
	Titulaire *string
	Telephone *string
	Email     *string
	Password  *string
	NCI       *string
}

// UpdateCompte updates the owning client's profile and bumps the account's
// version counter in one transaction. Ownership is enforced before anything
// is written. Every cached compte of the client is dropped afterwards, since
// each one carries the titulaire.
func (s *Service) UpdateCompte(ctx context.Context, principal domain.Principal, id uuid.UUID, input UpdateCompteInput) (*domain.Compte, error) {
	compte, err := s.repo.FindCompteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, compte); err != nil {
		return nil, err
	}

	update := domain.ClientUpdate{
		Titulaire: input.Titulaire,
		Telephone: input.Telephone,
		Email:     input.Email,
		NCI:       input.NCI,
	}
	if input.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		hashed := string(hash)
		update.PasswordHash = &hashed
	}

	version, err := s.repo.UpdateCompteOwner(ctx, id, compte.Version, compte.ClientID, update)
	if err != nil {
		return nil, err
	}
	if input.Titulaire != nil {
		compte.Titulaire = *input.Titulaire
	}
	compte.Version = version
	compte.DerniereModification = s.now()

	s.cache.InvalidateClient(ctx, compte.ClientID)
	log.Printf("level=info component=app op=update_compte outcome=success compte_id=%s client_id=%s version=%d", id, compte.ClientID, version)
	return compte, nil
}

// BlockCompte blocks an active savings account for the given duration.
func (s *Service) BlockCompte(ctx context.Context, principal domain.Principal, id uuid.UUID, motif string, duree int, unite domain.BlockUnit) (*domain.Compte, error) {
	compte, err := s.repo.FindCompteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, compte); err != nil {
		return nil, err
	}
	expected := compte.Version
	if err := compte.Block(motif, duree, unite, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCompteState(ctx, compte, expected); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	s.publish(ctx, domain.EventCompteBlocked, compte)
	log.Printf("level=info component=app op=block_compte outcome=success compte_id=%s fin=%s version=%d", id, compte.DateFinBlocage.Format(time.RFC3339), compte.Version)
	return compte, nil
}

// UnblockCompte returns a blocked account to actif. The motif is recorded in
// the log only; the stored block fields are cleared.
func (s *Service) UnblockCompte(ctx context.Context, principal domain.Principal, id uuid.UUID, motif string) (*domain.Compte, error) {
	compte, err := s.repo.FindCompteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, compte); err != nil {
		return nil, err
	}
	expected := compte.Version
	if err := compte.Unblock(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCompteState(ctx, compte, expected); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	s.publish(ctx, domain.EventCompteUnblocked, compte)
	log.Printf("level=info component=app op=unblock_compte outcome=success compte_id=%s motif=%q version=%d", id, motif, compte.Version)
	return compte, nil
}

// CloseCompte closes and soft-deletes an account. Closing twice is an
// invalid operation, not a silent success.
func (s *Service) CloseCompte(ctx context.Context, principal domain.Principal, id uuid.UUID) (*domain.Compte, error) {
	compte, err := s.repo.FindCompteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(principal, compte); err != nil {
		return nil, err
	}
	expected := compte.Version
	if err := compte.Close(); err != nil {
		return nil, err
	}
	if err := s.repo.CloseCompte(ctx, compte, expected); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	s.publish(ctx, domain.EventCompteClosed, compte)
	log.Printf("level=info component=app op=close_compte outcome=success compte_id=%s version=%d", id, compte.Version)
	return compte, nil
}

// publish sends a lifecycle event; failures are logged and never surface to
// the caller.
func (s *Service) publish(ctx context.Context, routingKey string, compte *domain.Compte) {
	if s.events == nil {
		return
	}
	event := domain.CompteLifecycleEvent{
		CompteID:     compte.ID.String(),
		NumeroCompte: compte.NumeroCompte,
		ClientID:     compte.ClientID.String(),
		Statut:       string(compte.Statut),
		Version:      compte.Version,
		OccurredAt:   s.now(),
	}
	if err := s.events.Publish(ctx, s.exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s compte_id=%s err=%v", routingKey, compte.ID, err)
	}
}
