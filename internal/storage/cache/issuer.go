package cache

import (
	"context"

	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/types"
)

// IssuerCache decorates an IssuerRepository with read-through caching.
type IssuerCache struct {
	next  storage.IssuerRepository
	store *Store
}

var _ storage.IssuerRepository = (*IssuerCache)(nil)

// NewIssuerCache wraps next with the shared store.
func NewIssuerCache(next storage.IssuerRepository, store *Store) *IssuerCache {
	return &IssuerCache{next: next, store: store}
}

// Create passes through; the new issuer has no stale keys to invalidate.
func (c *IssuerCache) Create(ctx context.Context, issuer *types.Issuer) (*types.Issuer, error) {
	return c.next.Create(ctx, issuer)
}

// FindByID serves from cache when possible. Misses are not cached.
func (c *IssuerCache) FindByID(ctx context.Context, id string) (*types.Issuer, error) {
	if issuer, ok := getAs[*types.Issuer](c.store, keyIssuer+id); ok {
		return issuer, nil
	}
	issuer, err := c.next.FindByID(ctx, id)
	if err == nil && issuer != nil {
		c.store.set(keyIssuer+issuer.ID, issuer)
	}
	return issuer, err
}

// FindAll always hits the database.
func (c *IssuerCache) FindAll(ctx context.Context) ([]*types.Issuer, error) {
	return c.next.FindAll(ctx)
}

// List always hits the database.
func (c *IssuerCache) List(ctx context.Context, page storage.Page) ([]*types.Issuer, error) {
	return c.next.List(ctx, page)
}

// Update invalidates the issuer's entry after a successful write.
func (c *IssuerCache) Update(ctx context.Context, id string, patch types.IssuerUpdate) (*types.Issuer, error) {
	issuer, err := c.next.Update(ctx, id, patch)
	if err == nil {
		c.store.delete(keyIssuer + id)
	}
	return issuer, err
}

// Delete sweeps the issuer and everything the database cascade removed
// underneath it.
func (c *IssuerCache) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.next.Delete(ctx, id)
	if err == nil && deleted {
		c.store.delete(keyIssuer+id, keyBadgeClassesByIssuer+id, keyAssertionsByIssuer+id)
		// Cascade took badge classes and assertions whose ids we never saw.
		c.store.deletePrefix(keyBadgeClass, keyAssertion, keyBadgeClassesByIssuer,
			keyAssertionsByIssuer, keyAssertionsByBadgeClass, keyAssertionsByRecipient)
	}
	return deleted, err
}
