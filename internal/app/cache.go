/**
 * @description
 * Redis-backed read cache for comptes. Two namespaces share one client:
 * single-account entries and listing pages. Invalidation is targeted: a state
 * mutation drops the account's own entry plus the listing namespace, and a
 * client profile mutation drops every compte of that client. Both groups are
 * tracked in Redis sets so they can be deleted without a scan.
 * Cache failures are never fatal; the service falls through to PostgreSQL.
 *
 * @dependencies
 * - crypto/sha1: Listing keys are hashed from the filter.
 * - github.com/redis/go-redis/v9: Redis client.
 */

package app

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/banqueapi/compte-service/internal/domain"
)

// CompteCache caches single comptes and listing pages. All methods are safe
// on a nil receiver, so callers never need to branch on whether Redis is
// configured.
type CompteCache struct {
	client    redis.UniversalClient
	prefix    string
	compteTTL time.Duration
	listTTL   time.Duration
}

func NewCompteCache(client redis.UniversalClient, prefix string, compteTTL, listTTL time.Duration) *CompteCache {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "banque"
	}
	return &CompteCache{client: client, prefix: trimmed, compteTTL: compteTTL, listTTL: listTTL}
}

func (c *CompteCache) compteKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:cache:compte:%s", c.prefix, id)
}

func (c *CompteCache) listIndexKey() string {
	return fmt.Sprintf("%s:cache:comptes:index", c.prefix)
}

// clientIndexKey tracks which single-account keys belong to a client, so a
// profile mutation can drop every compte that denormalizes the titulaire.
func (c *CompteCache) clientIndexKey(clientID uuid.UUID) string {
	return fmt.Sprintf("%s:cache:client:%s:comptes", c.prefix, clientID)
}

// listKey derives a stable cache key from the scoped filter. The client
// scope is part of the filter, so admins and clients never share entries.
func (c *CompteCache) listKey(filter domain.CompteFilter) string {
	scope := "admin"
	if filter.ClientID != nil {
		scope = filter.ClientID.String()
	}
	raw, _ := json.Marshal(filter)
	return fmt.Sprintf("%s:cache:comptes:%s:%x", c.prefix, scope, sha1.Sum(raw))
}

// GetCompte returns a cached account or (nil, false) on any miss.
func (c *CompteCache) GetCompte(ctx context.Context, id uuid.UUID) (*domain.Compte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.compteKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var compte cachedCompte
	if err := json.Unmarshal(data, &compte); err != nil {
		return nil, false
	}
	return compte.toDomain(), true
}

// SetCompte stores an account. Write errors are logged, not returned.
func (c *CompteCache) SetCompte(ctx context.Context, compte *domain.Compte) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(newCachedCompte(compte))
	if err != nil {
		return
	}
	key := c.compteKey(compte.ID)
	index := c.clientIndexKey(compte.ClientID)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, c.compteTTL)
	pipe.SAdd(ctx, index, key)
	pipe.Expire(ctx, index, c.compteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("level=warn component=cache msg=\"compte cache write failed\" compte_id=%s err=%v", compte.ID, err)
	}
}

// GetList returns a cached listing page or (nil, false) on any miss.
func (c *CompteCache) GetList(ctx context.Context, filter domain.CompteFilter) (*domain.ComptePage, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.listKey(filter)).Bytes()
	if err != nil {
		return nil, false
	}
	var page cachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false
	}
	return page.toDomain(), true
}

// SetList stores a listing page and records its key in the namespace index.
func (c *CompteCache) SetList(ctx context.Context, filter domain.CompteFilter, page *domain.ComptePage) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(newCachedPage(page))
	if err != nil {
		return
	}
	key := c.listKey(filter)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, c.listTTL)
	pipe.SAdd(ctx, c.listIndexKey(), key)
	pipe.Expire(ctx, c.listIndexKey(), c.listTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("level=warn component=cache msg=\"list cache write failed\" err=%v", err)
	}
}

// Invalidate drops the account's entry and the whole listing namespace
// after a mutation.
func (c *CompteCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	keys, err := c.client.SMembers(ctx, c.listIndexKey()).Result()
	if err != nil {
		log.Printf("level=warn component=cache msg=\"list index read failed\" err=%v", err)
		keys = nil
	}
	keys = append(keys, c.compteKey(id), c.listIndexKey())
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("level=warn component=cache msg=\"cache invalidation failed\" compte_id=%s err=%v", id, err)
	}
}

// InvalidateClient drops every cached compte owned by the client along with
// the listing namespace. Needed when the client's profile changes, since the
// titulaire is denormalized into each of their cached accounts.
func (c *CompteCache) InvalidateClient(ctx context.Context, clientID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	keys, err := c.client.SMembers(ctx, c.clientIndexKey(clientID)).Result()
	if err != nil {
		log.Printf("level=warn component=cache msg=\"client index read failed\" client_id=%s err=%v", clientID, err)
		keys = nil
	}
	listKeys, err := c.client.SMembers(ctx, c.listIndexKey()).Result()
	if err != nil {
		log.Printf("level=warn component=cache msg=\"list index read failed\" err=%v", err)
		listKeys = nil
	}
	keys = append(keys, listKeys...)
	keys = append(keys, c.clientIndexKey(clientID), c.listIndexKey())
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("level=warn component=cache msg=\"client cache invalidation failed\" client_id=%s err=%v", clientID, err)
	}
}

// cachedCompte mirrors domain.Compte with every field exported to JSON,
// including the ones the API representation hides (client id, version).
type cachedCompte struct {
	Compte   domain.Compte `json:"compte"`
	ClientID uuid.UUID     `json:"client_id"`
	Version  int           `json:"version"`
	Modified time.Time     `json:"modified"`
}

func newCachedCompte(compte *domain.Compte) cachedCompte {
	return cachedCompte{Compte: *compte, ClientID: compte.ClientID, Version: compte.Version, Modified: compte.DerniereModification}
}

func (c cachedCompte) toDomain() *domain.Compte {
	compte := c.Compte
	compte.ClientID = c.ClientID
	compte.Version = c.Version
	compte.DerniereModification = c.Modified
	return &compte
}

type cachedPage struct {
	Comptes []cachedCompte `json:"comptes"`
	Total   int            `json:"total"`
}

func newCachedPage(page *domain.ComptePage) cachedPage {
	out := cachedPage{Comptes: make([]cachedCompte, 0, len(page.Comptes)), Total: page.TotalItems}
	for i := range page.Comptes {
		out.Comptes = append(out.Comptes, newCachedCompte(&page.Comptes[i]))
	}
	return out
}

func (p cachedPage) toDomain() *domain.ComptePage {
	page := &domain.ComptePage{Comptes: make([]domain.Compte, 0, len(p.Comptes)), TotalItems: p.Total}
	for _, item := range p.Comptes {
		page.Comptes = append(page.Comptes, *item.toDomain())
	}
	return page
}
