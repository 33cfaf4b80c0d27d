/**
 * @description
 * Bearer token issuing and revocation. Tokens are HS256 JWTs carrying the
 * principal (subject, role, email) and a unique jti. Revocation is a
 * denylist keyed by jti: refresh revokes the old token before issuing a new
 * one, and logout revokes the current token. Token validity is never
 * extended in place.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Token signing and validation.
 * - github.com/google/uuid: jti and subject identifiers.
 */

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/banqueapi/compte-service/internal/domain"
)

// TokenRevoker stores revoked token ids until they would have expired
// anyway.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type tokenClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs, validates and revokes bearer tokens.
type TokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
	now     func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A nil revoker falls back to an
// in-process denylist, which is enough for a single instance.
func NewTokenIssuer(secret string, ttl time.Duration, revoker TokenRevoker) *TokenIssuer {
	if revoker == nil {
		revoker = NewMemoryTokenRevoker()
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		revoker: revoker,
		now:     time.Now,
	}
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a fresh token bound to the principal. The returned principal
// copy carries the new token id.
func (t *TokenIssuer) Issue(principal domain.Principal) (string, domain.Principal, error) {
	now := t.now()
	principal.TokenID = uuid.NewString()
	claims := tokenClaims{
		Role:  string(principal.Role),
		Email: principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			ID:        principal.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", domain.Principal{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, principal, nil
}

// Parse validates a bearer token and rebuilds the principal it carries.
// Revoked tokens fail with ErrInvalidToken like any other bad token.
func (t *TokenIssuer) Parse(ctx context.Context, tokenString string) (domain.Principal, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	var claims tokenClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleAdmin && role != domain.RoleClient {
		return domain.Principal{}, ErrInvalidToken
	}

	revoked, err := t.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return domain.Principal{}, ErrInvalidToken
	}

	return domain.Principal{
		ID:      subject,
		Role:    role,
		Email:   claims.Email,
		TokenID: claims.ID,
	}, nil
}

// Revoke denylists the principal's current token for the rest of its
// lifetime.
func (t *TokenIssuer) Revoke(ctx context.Context, principal domain.Principal) error {
	if principal.TokenID == "" {
		return nil
	}
	return t.revoker.Revoke(ctx, principal.TokenID, t.ttl)
}

// MemoryTokenRevoker is an in-process denylist. Entries are pruned lazily on
// lookup once their hold time passes.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{revoked: make(map[string]time.Time)}
}

func (m *MemoryTokenRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

func (m *MemoryTokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
