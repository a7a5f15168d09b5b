package cache

import (
	"context"

	"github.com/opencreds/badgestore/internal/storage"
	"github.com/opencreds/badgestore/internal/types"
)

// BadgeClassCache decorates a BadgeClassRepository with read-through caching.
type BadgeClassCache struct {
	next  storage.BadgeClassRepository
	store *Store
}

var _ storage.BadgeClassRepository = (*BadgeClassCache)(nil)

// NewBadgeClassCache wraps next with the shared store.
func NewBadgeClassCache(next storage.BadgeClassRepository, store *Store) *BadgeClassCache {
	return &BadgeClassCache{next: next, store: store}
}

// Create invalidates the owning issuer's badge class listing.
func (c *BadgeClassCache) Create(ctx context.Context, badge *types.BadgeClass) (*types.BadgeClass, error) {
	created, err := c.next.Create(ctx, badge)
	if err == nil {
		c.store.delete(keyBadgeClassesByIssuer + created.IssuerID)
	}
	return created, err
}

// FindByID serves from cache when possible. Misses are not cached.
func (c *BadgeClassCache) FindByID(ctx context.Context, id string) (*types.BadgeClass, error) {
	if badge, ok := getAs[*types.BadgeClass](c.store, keyBadgeClass+id); ok {
		return badge, nil
	}
	badge, err := c.next.FindByID(ctx, id)
	if err == nil && badge != nil {
		c.store.set(keyBadgeClass+badge.ID, badge)
	}
	return badge, err
}

// FindAll always hits the database.
func (c *BadgeClassCache) FindAll(ctx context.Context) ([]*types.BadgeClass, error) {
	return c.next.FindAll(ctx)
}

// List always hits the database.
func (c *BadgeClassCache) List(ctx context.Context, page storage.Page) ([]*types.BadgeClass, error) {
	return c.next.List(ctx, page)
}

// FindByIssuer caches the issuer's full badge class listing.
func (c *BadgeClassCache) FindByIssuer(ctx context.Context, issuerID string) ([]*types.BadgeClass, error) {
	if badges, ok := getAs[[]*types.BadgeClass](c.store, keyBadgeClassesByIssuer+issuerID); ok {
		return badges, nil
	}
	badges, err := c.next.FindByIssuer(ctx, issuerID)
	if err == nil && badges != nil {
		c.store.set(keyBadgeClassesByIssuer+issuerID, badges)
	}
	return badges, err
}

// ListByIssuer always hits the database; page windows do not cache well.
func (c *BadgeClassCache) ListByIssuer(ctx context.Context, issuerID string, page storage.Page) ([]*types.BadgeClass, error) {
	return c.next.ListByIssuer(ctx, issuerID, page)
}

// Update invalidates the badge class and the issuer listings it may have
// moved between.
func (c *BadgeClassCache) Update(ctx context.Context, id string, patch types.BadgeClassUpdate) (*types.BadgeClass, error) {
	badge, err := c.next.Update(ctx, id, patch)
	if err == nil {
		c.store.delete(keyBadgeClass + id)
		// The patch may have reassigned the issuer; the old owner's listing
		// is not recoverable from the result, so sweep them all.
		c.store.deletePrefix(keyBadgeClassesByIssuer)
	}
	return badge, err
}

// Delete sweeps the badge class and the assertions its cascade removed.
func (c *BadgeClassCache) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.next.Delete(ctx, id)
	if err == nil && deleted {
		c.store.delete(keyBadgeClass+id, keyAssertionsByBadgeClass+id)
		c.store.deletePrefix(keyBadgeClassesByIssuer, keyAssertion,
			keyAssertionsByIssuer, keyAssertionsByRecipient)
	}
	return deleted, err
}
