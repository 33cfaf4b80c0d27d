package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/banqueapi/compte-service/internal/domain"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour, nil)
	principal := domain.Principal{ID: uuid.New(), Role: domain.RoleClient, Email: "fatou@example.sn"}

	token, issued, err := issuer.Issue(principal)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.TokenID == "" {
		t.Fatal("expected a token id to be assigned")
	}

	parsed, err := issuer.Parse(context.Background(), token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.ID != principal.ID || parsed.Role != principal.Role || parsed.Email != principal.Email {
		t.Fatalf("parsed principal mismatch: %+v", parsed)
	}
	if parsed.TokenID != issued.TokenID {
		t.Fatalf("expected token id %q, got %q", issued.TokenID, parsed.TokenID)
	}
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour, nil)
	other := NewTokenIssuer("other-secret", time.Hour, nil)

	token, _, err := issuer.Issue(domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := other.Parse(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour, nil)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := issuer.Issue(domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Parse(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenIssuer_RevokedTokenIsRejected(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour, nil)
	principal := domain.Principal{ID: uuid.New(), Role: domain.RoleClient, Email: "fatou@example.sn"}

	token, issued, err := issuer.Issue(principal)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := issuer.Revoke(context.Background(), issued); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := issuer.Parse(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revocation, got %v", err)
	}
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour, nil)
	if _, err := issuer.Parse(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
